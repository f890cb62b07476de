package app

import (
	"context"
	"time"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// TestRepository loads test content (from cache/backing store).
type TestRepository interface {
	GetTest(ctx context.Context, testID int64) (domain.Test, error)
}

// AttemptStore persists attempts and their answers. AppendAnswer and
// Complete must be atomic per attempt: concurrent answer submissions may not
// lose percentage increments, and CompletedAt, once set, never changes.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt domain.TestAttempt) (domain.TestAttempt, error)
	AttemptByID(ctx context.Context, id int64) (domain.TestAttempt, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.TestAttempt, error)
	ListByTest(ctx context.Context, testID int64) ([]domain.TestAttempt, error)
	// AppendAnswer stores the record and adds delta to the attempt's
	// percentage in the same step. It rejects answers for completed attempts
	// and second answers to the same question within one attempt.
	AppendAnswer(ctx context.Context, rec domain.AnswerRecord, delta float64) (domain.AnswerRecord, error)
	// Complete marks the attempt completed at the given time. On an
	// already-completed attempt the original timestamp stays in place.
	Complete(ctx context.Context, id int64, at time.Time) (domain.TestAttempt, error)
}

// AttemptService manages the lifecycle of a user's run through a test:
// creation, answer recording with incremental scoring, and completion.
type AttemptService struct {
	attempts AttemptStore
	tests    TestRepository
	results  *ResultsHub
	now      func() time.Time
}

func NewAttemptService(attempts AttemptStore, tests TestRepository, results *ResultsHub) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		tests:    tests,
		results:  results,
		now:      time.Now,
	}
}

// CreateAttempt starts a fresh in-progress attempt. Each call creates an
// independent attempt; starting the same test twice is allowed.
func (s *AttemptService) CreateAttempt(ctx context.Context, userID, testID int64) (domain.TestAttempt, error) {
	if _, err := s.tests.GetTest(ctx, testID); err != nil {
		return domain.TestAttempt{}, err
	}

	attempt := domain.TestAttempt{
		UserID:    userID,
		TestID:    testID,
		StartedAt: s.now(),
	}
	return s.attempts.CreateAttempt(ctx, attempt)
}

// RecordAnswer evaluates the selection against the question, appends an
// immutable answer record, and credits 100/questionCount to the attempt's
// percentage when correct. The question must belong to the attempt's test,
// must not have been answered before, and the attempt must be in progress.
func (s *AttemptService) RecordAnswer(ctx context.Context, attemptID, questionID int64, selected *int) (domain.AnswerRecord, error) {
	attempt, err := s.attempts.AttemptByID(ctx, attemptID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	if attempt.Completed() {
		return domain.AnswerRecord{}, domain.ErrAttemptCompleted
	}

	test, err := s.tests.GetTest(ctx, attempt.TestID)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	var question *domain.Question
	for i := range test.Questions {
		if test.Questions[i].ID == questionID {
			question = &test.Questions[i]
			break
		}
	}
	if question == nil {
		return domain.AnswerRecord{}, domain.ErrQuestionNotFound
	}

	correct := IsCorrectAnswer(*question, selected)
	var delta float64
	if correct && len(test.Questions) > 0 {
		delta = 100.0 / float64(len(test.Questions))
	}

	rec := domain.AnswerRecord{
		AttemptID:     attemptID,
		QuestionID:    questionID,
		SelectedIndex: selected,
		Correct:       correct,
		AnsweredAt:    s.now(),
	}
	saved, err := s.attempts.AppendAnswer(ctx, rec, delta)
	if err != nil {
		return domain.AnswerRecord{}, err
	}

	s.publish(ctx, attemptID)
	return saved, nil
}

// CompleteAttempt transitions the attempt to its terminal state. Repeated
// calls return the attempt with the original completion timestamp.
func (s *AttemptService) CompleteAttempt(ctx context.Context, attemptID int64) (domain.TestAttempt, error) {
	attempt, err := s.attempts.Complete(ctx, attemptID, s.now())
	if err != nil {
		return domain.TestAttempt{}, err
	}

	s.publish(ctx, attemptID)
	return attempt, nil
}

func (s *AttemptService) FindAttempt(ctx context.Context, attemptID int64) (domain.TestAttempt, error) {
	return s.attempts.AttemptByID(ctx, attemptID)
}

func (s *AttemptService) ListAttemptsForUser(ctx context.Context, userID int64) ([]domain.TestAttempt, error) {
	return s.attempts.ListByUser(ctx, userID)
}

func (s *AttemptService) ListAttemptsForTest(ctx context.Context, testID int64) ([]domain.TestAttempt, error) {
	return s.attempts.ListByTest(ctx, testID)
}

func (s *AttemptService) publish(ctx context.Context, attemptID int64) {
	if s.results == nil {
		return
	}
	attempt, err := s.attempts.AttemptByID(ctx, attemptID)
	if err != nil {
		return
	}
	s.results.Publish(domain.AttemptUpdate{
		TestID:      attempt.TestID,
		AttemptID:   attempt.ID,
		UserID:      attempt.UserID,
		Percentage:  attempt.Percentage,
		Answered:    len(attempt.Answers),
		CompletedAt: attempt.CompletedAt,
		UpdatedAt:   s.now(),
	})
}
