package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// TestStore is an in-memory test catalog. It doubles as a TestLoader for the
// cached repositories (useful for tests and redis-less deployments).
type TestStore struct {
	mu             sync.RWMutex
	nextID         int64
	nextQuestionID int64
	tests          map[int64]domain.Test
}

func NewTestStore() *TestStore {
	return &TestStore{tests: make(map[int64]domain.Test)}
}

// Seed inserts tests as-is, assigning ids where missing. Intended for demos
// and tests.
func (s *TestStore) Seed(tests ...domain.Test) {
	for _, test := range tests {
		_, _ = s.CreateTest(context.Background(), test)
	}
}

func (s *TestStore) ListTests(_ context.Context) ([]domain.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Test, 0, len(s.tests))
	for _, test := range s.tests {
		out = append(out, test)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *TestStore) CreateTest(_ context.Context, test domain.Test) (domain.Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if test.ID == 0 {
		s.nextID++
		test.ID = s.nextID
	} else if test.ID > s.nextID {
		s.nextID = test.ID
	}
	questions := make([]domain.Question, len(test.Questions))
	for i, question := range test.Questions {
		if question.ID == 0 {
			s.nextQuestionID++
			question.ID = s.nextQuestionID
		} else if question.ID > s.nextQuestionID {
			s.nextQuestionID = question.ID
		}
		question.TestID = test.ID
		questions[i] = question
	}
	test.Questions = questions
	s.tests[test.ID] = test
	return test, nil
}

func (s *TestStore) DeleteTest(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[id]; !ok {
		return domain.ErrTestNotFound
	}
	delete(s.tests, id)
	return nil
}

// LoadTest satisfies the TestLoader contract of the cached repositories.
func (s *TestStore) LoadTest(_ context.Context, id int64) (domain.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	test, ok := s.tests[id]
	if !ok {
		return domain.Test{}, domain.ErrTestNotFound
	}
	return test, nil
}
