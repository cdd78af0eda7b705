package chat

import (
	"github.com/dmchat/internal/event"
	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/model"
	"github.com/dmchat/internal/presence"
)

// Router pushes freshly stored messages to the receiver's live connection.
type Router struct {
	reg *presence.Registry
}

func NewRouter(reg *presence.Registry) *Router {
	return &Router{reg: reg}
}

// Route reports whether the receiver's connection accepted the message.
// The message is already durable; false is not an error for anyone.
func (r *Router) Route(m model.Message) bool {
	conn, ok := r.reg.Lookup(m.ReceiverID)
	if !ok {
		logger.Debugf("route message=%s: receiver=%s offline", m.ID, m.ReceiverID)
		return false
	}
	if !conn.Send(event.Delivered(m)) {
		logger.Errorf("route message=%s: push to receiver=%s refused", m.ID, m.ReceiverID)
		return false
	}
	return true
}
