package chat

import (
	"context"

	"github.com/dmchat/internal/model"
)

// AccountStore — учётные записи (реализации: repository.UserRepository, memory.Users).
type AccountStore interface {
	FindOtherUsers(ctx context.Context, excludingID string) ([]model.User, error)
}

// MessageStore — долговременное хранилище сообщений (repository.MessageRepository, memory.Messages).
type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) error
	// FindBetween returns both directions of the a<->b conversation ordered by creation time.
	FindBetween(ctx context.Context, a, b string) ([]model.Message, error)
	FindUnseen(ctx context.Context, senderID, receiverID string) ([]model.Message, error)
	// UpdateSeen flips seen on id when receiverID is its receiver; unknown id is not an error.
	UpdateSeen(ctx context.Context, id, receiverID string) error
	UpdateSeenBulk(ctx context.Context, senderID, receiverID string) error
}

// Notifier — внешнее уведомление получателя, который сейчас не в сети (Web Push).
type Notifier interface {
	NotifyMessage(ctx context.Context, m model.Message)
}
