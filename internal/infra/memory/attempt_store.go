package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. All
// mutations run under a single lock, so percentage increments for one
// attempt are serialized and never lost under concurrent submissions.
type AttemptStore struct {
	mu           sync.RWMutex
	nextID       int64
	nextAnswerID int64
	attempts     map[int64]*domain.TestAttempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[int64]*domain.TestAttempt)}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.TestAttempt) (domain.TestAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	attempt.ID = s.nextID
	stored := attempt
	s.attempts[attempt.ID] = &stored
	return attempt, nil
}

func (s *AttemptStore) AttemptByID(_ context.Context, id int64) (domain.TestAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return domain.TestAttempt{}, domain.ErrAttemptNotFound
	}
	return copyAttempt(attempt), nil
}

func (s *AttemptStore) ListByUser(_ context.Context, userID int64) ([]domain.TestAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TestAttempt, 0)
	for _, attempt := range s.attempts {
		if attempt.UserID == userID {
			out = append(out, copyAttempt(attempt))
		}
	}
	return out, nil
}

func (s *AttemptStore) ListByTest(_ context.Context, testID int64) ([]domain.TestAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TestAttempt, 0)
	for _, attempt := range s.attempts {
		if attempt.TestID == testID {
			out = append(out, copyAttempt(attempt))
		}
	}
	return out, nil
}

func (s *AttemptStore) AppendAnswer(_ context.Context, rec domain.AnswerRecord, delta float64) (domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[rec.AttemptID]
	if !ok {
		return domain.AnswerRecord{}, domain.ErrAttemptNotFound
	}
	if attempt.CompletedAt != nil {
		return domain.AnswerRecord{}, domain.ErrAttemptCompleted
	}
	for _, answer := range attempt.Answers {
		if answer.QuestionID == rec.QuestionID {
			return domain.AnswerRecord{}, domain.ErrAlreadyAnswered
		}
	}

	s.nextAnswerID++
	rec.ID = s.nextAnswerID
	attempt.Answers = append(attempt.Answers, rec)
	attempt.Percentage += delta
	return rec, nil
}

func (s *AttemptStore) Complete(_ context.Context, id int64, at time.Time) (domain.TestAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[id]
	if !ok {
		return domain.TestAttempt{}, domain.ErrAttemptNotFound
	}
	if attempt.CompletedAt == nil {
		completed := at
		attempt.CompletedAt = &completed
	}
	return copyAttempt(attempt), nil
}

func copyAttempt(attempt *domain.TestAttempt) domain.TestAttempt {
	out := *attempt
	out.Answers = append([]domain.AnswerRecord(nil), attempt.Answers...)
	if attempt.CompletedAt != nil {
		completed := *attempt.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}
