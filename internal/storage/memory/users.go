package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmchat/internal/model"
	"github.com/dmchat/internal/repository"
)

// Users — учётные записи в памяти с той же семантикой ошибок, что и repository.UserRepository.
type Users struct {
	mu    sync.RWMutex
	byID  map[string]model.User
	email map[string]string
}

func NewUsers() *Users {
	return &Users{byID: make(map[string]model.User), email: make(map[string]string)}
}

func (s *Users) Create(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.email[u.Email]; ok {
		return repository.ErrAlreadyExists
	}
	if _, ok := s.byID[u.ID]; ok {
		return repository.ErrAlreadyExists
	}
	s.byID[u.ID] = *u
	s.email[u.Email] = u.ID
	return nil
}

func (s *Users) GetByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.email[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := s.byID[id]
	return &u, nil
}

func (s *Users) FindOtherUsers(ctx context.Context, excludingID string) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.User, 0, len(s.byID))
	for id, u := range s.byID {
		if id != excludingID {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].FullName != users[j].FullName {
			return users[i].FullName < users[j].FullName
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (s *Users) UpdateProfile(ctx context.Context, id, fullName, bio, profilePic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.FullName, u.Bio, u.ProfilePic = fullName, bio, profilePic
	s.byID[id] = u
	return nil
}
