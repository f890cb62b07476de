package memory

import (
	"context"
	"sync"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// UserStore is an in-memory implementation of app.UserStore.
type UserStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]domain.User
	byMail map[string]int64
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:  make(map[int64]domain.User),
		byMail: make(map[string]int64),
	}
}

func (s *UserStore) ByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byMail[email]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *UserStore) ByID(_ context.Context, id int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *UserStore) Create(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byMail[user.Email]; ok {
		return domain.User{}, domain.ErrEmailTaken
	}
	s.nextID++
	user.ID = s.nextID
	s.users[user.ID] = user
	s.byMail[user.Email] = user.ID
	return user, nil
}

func (s *UserStore) UpdatePassword(_ context.Context, email, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byMail[email]
	if !ok {
		return domain.ErrUserNotFound
	}
	user := s.users[id]
	user.PasswordHash = passwordHash
	s.users[id] = user
	return nil
}

func (s *UserStore) UpdateRole(_ context.Context, email string, role domain.Role) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byMail[email]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	user := s.users[id]
	user.Role = role
	s.users[id] = user
	return user, nil
}

func (s *UserStore) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0)
	for _, user := range s.users {
		if user.Role == role {
			out = append(out, user)
		}
	}
	return out, nil
}
