package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// TestStore is the durable test catalog. It also serves as the TestLoader
// behind the cached repositories.
type TestStore struct {
	pool *pgxpool.Pool
}

func NewTestStore(pool *pgxpool.Pool) *TestStore {
	return &TestStore{pool: pool}
}

// LoadTest returns a test with its questions.
func (s *TestStore) LoadTest(ctx context.Context, testID int64) (domain.Test, error) {
	var test domain.Test
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, time_limit_minutes, admin_id, created_at
		   FROM template_tests WHERE id=$1`, testID).
		Scan(&test.ID, &test.Title, &test.Description, &test.TimeLimitMinutes, &test.AdminID, &test.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Test{}, domain.ErrTestNotFound
		}
		return domain.Test{}, fmt.Errorf("load test: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, test_id, question, answers, correct_answer_index, type
		   FROM questions WHERE test_id=$1 ORDER BY id`, testID)
	if err != nil {
		return domain.Test{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var question domain.Question
		var rawAnswers []byte
		if err := rows.Scan(&question.ID, &question.TestID, &question.Text, &rawAnswers,
			&question.CorrectAnswerIndex, &question.Type); err != nil {
			return domain.Test{}, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawAnswers, &question.Answers); err != nil {
			return domain.Test{}, fmt.Errorf("unmarshal answers: %w", err)
		}
		test.Questions = append(test.Questions, question)
	}
	return test, rows.Err()
}

func (s *TestStore) ListTests(ctx context.Context) ([]domain.Test, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, description, time_limit_minutes, admin_id, created_at
		   FROM template_tests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	tests := make([]domain.Test, 0)
	for rows.Next() {
		var test domain.Test
		if err := rows.Scan(&test.ID, &test.Title, &test.Description,
			&test.TimeLimitMinutes, &test.AdminID, &test.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		tests = append(tests, test)
	}
	return tests, rows.Err()
}

// CreateTest inserts the test and its questions in one transaction.
func (s *TestStore) CreateTest(ctx context.Context, test domain.Test) (domain.Test, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Test{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO template_tests (title, description, time_limit_minutes, admin_id, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		test.Title, test.Description, test.TimeLimitMinutes, test.AdminID, test.CreatedAt).
		Scan(&test.ID)
	if err != nil {
		return domain.Test{}, fmt.Errorf("insert test: %w", err)
	}

	for i := range test.Questions {
		question := &test.Questions[i]
		question.TestID = test.ID
		answers, err := json.Marshal(question.Answers)
		if err != nil {
			return domain.Test{}, fmt.Errorf("marshal answers: %w", err)
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO questions (test_id, question, answers, correct_answer_index, type)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			question.TestID, question.Text, answers, question.CorrectAnswerIndex, question.Type).
			Scan(&question.ID)
		if err != nil {
			return domain.Test{}, fmt.Errorf("insert question: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Test{}, fmt.Errorf("commit: %w", err)
	}
	return test, nil
}

func (s *TestStore) DeleteTest(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM template_tests WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTestNotFound
	}
	return nil
}
