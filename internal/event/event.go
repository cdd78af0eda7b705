// Package event описывает JSON-конверт, которым сервер и клиент обмениваются по WebSocket.
package event

import "github.com/dmchat/internal/model"

type Type string

const (
	// server -> client
	PresenceChanged  Type = "presence_changed"
	MessageDelivered Type = "message_delivered"
	Error            Type = "error"

	// client -> server
	Acknowledge Type = "acknowledge"
)

// Incoming is what the client sends to the server.
type Incoming struct {
	Type      Type   `json:"type"`
	MessageID string `json:"message_id,omitempty"`
}

// Outgoing is what the server sends to the client.
type Outgoing struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

// PresencePayload — полный список онлайн-пользователей, не дельта.
type PresencePayload struct {
	UserIDs []string `json:"user_ids"`
}

func Presence(userIDs []string) Outgoing {
	return Outgoing{Type: PresenceChanged, Payload: PresencePayload{UserIDs: userIDs}}
}

func Delivered(m model.Message) Outgoing {
	return Outgoing{Type: MessageDelivered, Payload: m}
}

func Err(msg string) Outgoing {
	return Outgoing{Type: Error, Payload: msg}
}
