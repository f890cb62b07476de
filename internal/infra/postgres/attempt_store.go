package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// AttemptStore persists attempts and answers in Postgres. The percentage
// update rides in the same transaction as the answer insert and is expressed
// as `percentage = percentage + delta`, so concurrent submissions against
// one attempt serialize on the row lock and no increment is lost.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.TestAttempt) (domain.TestAttempt, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_test_attempts (user_id, test_id, started_at, percentage)
		 VALUES ($1, $2, $3, 0) RETURNING id`,
		attempt.UserID, attempt.TestID, attempt.StartedAt).
		Scan(&attempt.ID)
	if err != nil {
		return domain.TestAttempt{}, fmt.Errorf("create attempt: %w", err)
	}
	return attempt, nil
}

func (s *AttemptStore) AttemptByID(ctx context.Context, id int64) (domain.TestAttempt, error) {
	var attempt domain.TestAttempt
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, test_id, started_at, completed_at, percentage
		   FROM user_test_attempts WHERE id=$1`, id).
		Scan(&attempt.ID, &attempt.UserID, &attempt.TestID,
			&attempt.StartedAt, &attempt.CompletedAt, &attempt.Percentage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TestAttempt{}, domain.ErrAttemptNotFound
		}
		return domain.TestAttempt{}, fmt.Errorf("load attempt: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, attempt_id, question_id, selected_index, is_correct, answered_at
		   FROM user_answers WHERE attempt_id=$1 ORDER BY answered_at, id`, id)
	if err != nil {
		return domain.TestAttempt{}, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec domain.AnswerRecord
		if err := rows.Scan(&rec.ID, &rec.AttemptID, &rec.QuestionID,
			&rec.SelectedIndex, &rec.Correct, &rec.AnsweredAt); err != nil {
			return domain.TestAttempt{}, fmt.Errorf("scan answer: %w", err)
		}
		attempt.Answers = append(attempt.Answers, rec)
	}
	return attempt, rows.Err()
}

func (s *AttemptStore) ListByUser(ctx context.Context, userID int64) ([]domain.TestAttempt, error) {
	return s.list(ctx, `user_id`, userID)
}

func (s *AttemptStore) ListByTest(ctx context.Context, testID int64) ([]domain.TestAttempt, error) {
	return s.list(ctx, `test_id`, testID)
}

func (s *AttemptStore) list(ctx context.Context, column string, value int64) ([]domain.TestAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, test_id, started_at, completed_at, percentage
		   FROM user_test_attempts WHERE `+column+`=$1 ORDER BY started_at DESC, id DESC`, value)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]domain.TestAttempt, 0)
	for rows.Next() {
		var attempt domain.TestAttempt
		if err := rows.Scan(&attempt.ID, &attempt.UserID, &attempt.TestID,
			&attempt.StartedAt, &attempt.CompletedAt, &attempt.Percentage); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func (s *AttemptStore) AppendAnswer(ctx context.Context, rec domain.AnswerRecord, delta float64) (domain.AnswerRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.AnswerRecord{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var completedAt *time.Time
	err = tx.QueryRow(ctx,
		`SELECT completed_at FROM user_test_attempts WHERE id=$1 FOR UPDATE`, rec.AttemptID).
		Scan(&completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AnswerRecord{}, domain.ErrAttemptNotFound
		}
		return domain.AnswerRecord{}, fmt.Errorf("lock attempt: %w", err)
	}
	if completedAt != nil {
		return domain.AnswerRecord{}, domain.ErrAttemptCompleted
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO user_answers (attempt_id, question_id, selected_index, is_correct, answered_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (attempt_id, question_id) DO NOTHING
		 RETURNING id`,
		rec.AttemptID, rec.QuestionID, rec.SelectedIndex, rec.Correct, rec.AnsweredAt).
		Scan(&rec.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AnswerRecord{}, domain.ErrAlreadyAnswered
		}
		return domain.AnswerRecord{}, fmt.Errorf("insert answer: %w", err)
	}

	if delta != 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE user_test_attempts SET percentage = percentage + $2 WHERE id=$1`,
			rec.AttemptID, delta); err != nil {
			return domain.AnswerRecord{}, fmt.Errorf("update percentage: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.AnswerRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (s *AttemptStore) Complete(ctx context.Context, id int64, at time.Time) (domain.TestAttempt, error) {
	// Only the first completion writes a timestamp; later calls are no-ops.
	if _, err := s.pool.Exec(ctx,
		`UPDATE user_test_attempts SET completed_at=$2 WHERE id=$1 AND completed_at IS NULL`,
		id, at); err != nil {
		return domain.TestAttempt{}, fmt.Errorf("complete attempt: %w", err)
	}
	return s.AttemptByID(ctx, id)
}
