package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmchat/internal/chat"
	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/middleware"
	"github.com/dmchat/internal/model"
	"github.com/dmchat/internal/repository"
)

type MessageHandler struct {
	svc         *chat.Service
	users       UserStore
	images      ImageUploader
	maxBodySize int64
}

func NewMessageHandler(svc *chat.Service, users UserStore, images ImageUploader, maxBodySize int64) *MessageHandler {
	return &MessageHandler{svc: svc, users: users, images: images, maxBodySize: maxBodySize}
}

type usersResponse struct {
	Success        bool               `json:"success"`
	Users          []model.UserPublic `json:"users"`
	UnseenMessages map[string]int     `json:"unseenMessages"`
}

// GetUsers — GET /api/messages/users: сайдбар со счётчиками непрочитанных.
func (h *MessageHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.GetUsers", time.Now())()
	users, unseen, err := h.svc.ListContactsWithUnseen(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		logger.Errorf("get users: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load users")
		return
	}
	writeJSON(w, http.StatusOK, usersResponse{Success: true, Users: users, UnseenMessages: unseen})
}

type messagesResponse struct {
	Success  bool            `json:"success"`
	Messages []model.Message `json:"messages"`
}

// GetMessages — GET /api/messages/{id}: история диалога, входящие помечаются прочитанными.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.GetMessages", time.Now())()
	contactID := chi.URLParam(r, "id")
	msgs, err := h.svc.LoadConversation(r.Context(), middleware.GetUserID(r.Context()), contactID)
	if err != nil {
		logger.Errorf("get messages contact=%s: %v", contactID, err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Success: true, Messages: msgs})
}

// MarkSeen — PUT /api/messages/mark/{id}.
func (h *MessageHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	if err := h.svc.Acknowledge(r.Context(), middleware.GetUserID(r.Context()), messageID); err != nil {
		logger.Errorf("mark seen message=%s: %v", messageID, err)
		writeError(w, http.StatusInternalServerError, "failed to mark message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type sendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type sendResponse struct {
	Success    bool           `json:"success"`
	NewMessage *model.Message `json:"newMessage"`
}

// Send — POST /api/messages/send/{id}. image — data URL, сохраняется в blob до записи сообщения.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.Send", time.Now())()
	var req sendRequest
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}
	in := chat.SendInput{
		SenderID:   middleware.GetUserID(r.Context()),
		ReceiverID: chi.URLParam(r, "id"),
		Text:       req.Text,
		ImageURL:   req.Image,
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.users.GetByID(r.Context(), in.ReceiverID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "receiver not found")
			return
		}
		logger.Errorf("send lookup receiver=%s: %v", in.ReceiverID, err)
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	if req.Image != "" {
		url, err := h.images.UploadDataURL(r.Context(), req.Image)
		if err != nil {
			writeImageError(w, err)
			return
		}
		in.ImageURL = url
	}
	m, err := h.svc.SendMessage(r.Context(), in)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrInvalidReceiver):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Errorf("send message to=%s: %v", in.ReceiverID, err)
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, sendResponse{Success: true, NewMessage: m})
}
