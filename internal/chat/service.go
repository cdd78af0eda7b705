// Package chat — личные сообщения: отправка с живой доставкой, загрузка диалога
// и счётчики непрочитанных для сайдбара.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/model"
)

var (
	ErrEmptyMessage    = errors.New("message must have text or image")
	ErrInvalidReceiver = errors.New("invalid receiver")
)

const notifyTimeout = 10 * time.Second

type Service struct {
	accounts AccountStore
	messages MessageStore
	router   *Router
	counter  *Counter
	notifier Notifier
	now      func() time.Time
}

// NewService собирает сервис. notifier может быть nil — тогда офлайн-уведомлений нет.
func NewService(accounts AccountStore, messages MessageStore, router *Router, counter *Counter, notifier Notifier) *Service {
	return &Service{
		accounts: accounts,
		messages: messages,
		router:   router,
		counter:  counter,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListContactsWithUnseen returns every other user and the sparse unseen map for the sidebar.
func (s *Service) ListContactsWithUnseen(ctx context.Context, viewerID string) ([]model.UserPublic, map[string]int, error) {
	defer logger.DeferLogDuration("chat.ListContactsWithUnseen", time.Now())()
	users, err := s.accounts.FindOtherUsers(ctx, viewerID)
	if err != nil {
		return nil, nil, fmt.Errorf("chat.ListContactsWithUnseen users: %w", err)
	}
	ids := make([]string, 0, len(users))
	public := make([]model.UserPublic, 0, len(users))
	for i := range users {
		ids = append(ids, users[i].ID)
		public = append(public, users[i].ToPublic())
	}
	unseen, err := s.counter.Compute(ctx, viewerID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("chat.ListContactsWithUnseen: %w", err)
	}
	return public, unseen, nil
}

// LoadConversation returns the viewer<->contact history and marks the contact's messages seen.
// Opening a conversation is the acknowledgement of everything in it.
func (s *Service) LoadConversation(ctx context.Context, viewerID, contactID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("chat.LoadConversation", time.Now())()
	msgs, err := s.messages.FindBetween(ctx, viewerID, contactID)
	if err != nil {
		return nil, fmt.Errorf("chat.LoadConversation: %w", err)
	}
	if err := s.counter.MarkConversationSeen(ctx, viewerID, contactID); err != nil {
		return nil, fmt.Errorf("chat.LoadConversation: %w", err)
	}
	for i := range msgs {
		if msgs[i].SenderID == contactID && msgs[i].ReceiverID == viewerID {
			msgs[i].Seen = true
		}
	}
	return msgs, nil
}

type SendInput struct {
	SenderID   string
	ReceiverID string
	Text       string
	ImageURL   string
}

// Validate rejects a message before anything is stored.
func (in SendInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" && in.ImageURL == "" {
		return ErrEmptyMessage
	}
	if in.ReceiverID == "" || in.ReceiverID == in.SenderID {
		return ErrInvalidReceiver
	}
	return nil
}

// SendMessage stores the message and then tries live delivery.
// The returned error only ever describes validation or storage; delivery is not reported.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.SendMessage", time.Now())()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m := &model.Message{
		ID:         uuid.New().String(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Text:       in.Text,
		Image:      in.ImageURL,
		Seen:       false,
		CreatedAt:  s.now(),
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("chat.SendMessage: %w", err)
	}

	if !s.router.Route(*m) && s.notifier != nil {
		msg := *m
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			s.notifier.NotifyMessage(nctx, msg)
		}()
	}
	return m, nil
}

// Acknowledge marks one message seen on behalf of its receiver.
func (s *Service) Acknowledge(ctx context.Context, viewerID, messageID string) error {
	if messageID == "" {
		return nil
	}
	if err := s.counter.MarkSeen(ctx, viewerID, messageID); err != nil {
		return fmt.Errorf("chat.Acknowledge: %w", err)
	}
	return nil
}
