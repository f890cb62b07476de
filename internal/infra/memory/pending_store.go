package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// PendingStore is an in-memory implementation of app.PendingStore backed by
// mutex-guarded maps. Entries do not survive a process restart, which the
// verification flows tolerate. Expired entries are removed lazily on lookup
// and by Sweep.
type PendingStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu            sync.RWMutex
	registrations map[string]domain.PendingRegistration
	resets        map[string]domain.PendingPasswordReset
}

func NewPendingStore(ttl time.Duration) *PendingStore {
	return NewPendingStoreWithClock(ttl, time.Now)
}

// NewPendingStoreWithClock allows deterministic TTL checks in tests.
func NewPendingStoreWithClock(ttl time.Duration, clock func() time.Time) *PendingStore {
	return &PendingStore{
		ttl:           ttl,
		clock:         clock,
		registrations: make(map[string]domain.PendingRegistration),
		resets:        make(map[string]domain.PendingPasswordReset),
	}
}

func (s *PendingStore) SaveRegistration(_ context.Context, rec domain.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.CreatedAt = s.clock()
	s.registrations[rec.ID] = rec
	return nil
}

func (s *PendingStore) ConsumeRegistration(_ context.Context, id, code string) (domain.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registrations[id]
	if !ok {
		return domain.PendingRegistration{}, domain.ErrRegistrationNotFound
	}
	if s.expired(rec.CreatedAt) {
		delete(s.registrations, id)
		return domain.PendingRegistration{}, domain.ErrCodeExpired
	}
	if rec.Code != code {
		return domain.PendingRegistration{}, domain.ErrCodeMismatch
	}

	delete(s.registrations, id)
	return rec, nil
}

func (s *PendingStore) RefreshRegistration(_ context.Context, id, code string) (domain.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.registrations[id]
	if !ok {
		return domain.PendingRegistration{}, domain.ErrRegistrationNotFound
	}
	if s.expired(rec.CreatedAt) {
		delete(s.registrations, id)
		return domain.PendingRegistration{}, domain.ErrCodeExpired
	}

	rec.Code = code
	rec.CreatedAt = s.clock()
	s.registrations[id] = rec
	return rec, nil
}

func (s *PendingStore) SavePasswordReset(_ context.Context, rec domain.PendingPasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.CreatedAt = s.clock()
	s.resets[rec.ID] = rec
	return nil
}

func (s *PendingStore) VerifyPasswordReset(_ context.Context, id, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.resets[id]
	if !ok {
		return domain.ErrResetNotFound
	}
	if s.expired(rec.CreatedAt) {
		delete(s.resets, id)
		return domain.ErrCodeExpired
	}
	if rec.Code != code {
		return domain.ErrCodeMismatch
	}

	rec.Verified = true
	s.resets[id] = rec
	return nil
}

func (s *PendingStore) ConsumePasswordReset(_ context.Context, id string) (domain.PendingPasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.resets[id]
	if !ok {
		return domain.PendingPasswordReset{}, domain.ErrResetNotFound
	}
	if s.expired(rec.CreatedAt) {
		delete(s.resets, id)
		return domain.PendingPasswordReset{}, domain.ErrCodeExpired
	}
	// An unverified reset is not consumable; the id alone is not enough.
	if !rec.Verified {
		return domain.PendingPasswordReset{}, domain.ErrResetNotFound
	}

	delete(s.resets, id)
	return rec, nil
}

// Sweep removes expired records of both kinds.
func (s *PendingStore) Sweep(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.registrations {
		if s.expired(rec.CreatedAt) {
			delete(s.registrations, id)
		}
	}
	for id, rec := range s.resets {
		if s.expired(rec.CreatedAt) {
			delete(s.resets, id)
		}
	}
}

func (s *PendingStore) expired(createdAt time.Time) bool {
	return s.clock().Sub(createdAt) > s.ttl
}
