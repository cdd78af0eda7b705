package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmchat/internal/model"
	"github.com/dmchat/internal/repository"
)

// Messages — хранилище сообщений в памяти (chat.MessageStore).
type Messages struct {
	mu   sync.RWMutex
	msgs []model.Message
	byID map[string]int
}

func NewMessages() *Messages {
	return &Messages{byID: make(map[string]int)}
}

func (s *Messages) Insert(ctx context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.ID]; ok {
		return repository.ErrAlreadyExists
	}
	s.byID[m.ID] = len(s.msgs)
	s.msgs = append(s.msgs, *m)
	return nil
}

func (s *Messages) GetByID(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m := s.msgs[i]
	return &m, nil
}

func (s *Messages) filter(match func(m *model.Message) bool) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for i := range s.msgs {
		if match(&s.msgs[i]) {
			out = append(out, s.msgs[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Messages) FindBetween(ctx context.Context, a, b string) ([]model.Message, error) {
	return s.filter(func(m *model.Message) bool {
		return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
	}), nil
}

func (s *Messages) FindUnseen(ctx context.Context, senderID, receiverID string) ([]model.Message, error) {
	return s.filter(func(m *model.Message) bool {
		return m.SenderID == senderID && m.ReceiverID == receiverID && !m.Seen
	}), nil
}

func (s *Messages) UpdateSeen(ctx context.Context, id, receiverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byID[id]; ok && s.msgs[i].ReceiverID == receiverID {
		s.msgs[i].Seen = true
	}
	return nil
}

func (s *Messages) UpdateSeenBulk(ctx context.Context, senderID, receiverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].SenderID == senderID && s.msgs[i].ReceiverID == receiverID {
			s.msgs[i].Seen = true
		}
	}
	return nil
}
