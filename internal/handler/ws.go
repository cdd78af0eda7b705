package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/middleware"
	"github.com/dmchat/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	opts           ws.Options
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler — allowedOrigins как в CORS ("*" — любой origin).
func NewWSHandler(hub *ws.Hub, opts ws.Options, allowedOrigins []string) *WSHandler {
	h := &WSHandler{hub: hub, opts: opts, allowedOrigins: allowedOrigins}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeWS — GET /ws. Пользователь уже определён JWTAuth.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, userID, h.opts)
	// connect должен попасть в очередь hub раньше, чем readPump сможет отправить disconnect
	h.hub.Register(client)
	client.Start()
}
