package app

import (
	"context"
	"time"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// TestCatalog is the durable store for authored tests.
type TestCatalog interface {
	ListTests(ctx context.Context) ([]domain.Test, error)
	CreateTest(ctx context.Context, test domain.Test) (domain.Test, error)
	DeleteTest(ctx context.Context, id int64) error
}

// TestService covers test authoring and lookup. Reads of a single test go
// through the cached repository used by the scoring path.
type TestService struct {
	catalog TestCatalog
	tests   TestRepository
	now     func() time.Time
}

func NewTestService(catalog TestCatalog, tests TestRepository) *TestService {
	return &TestService{
		catalog: catalog,
		tests:   tests,
		now:     time.Now,
	}
}

func (s *TestService) ListTests(ctx context.Context) ([]domain.Test, error) {
	return s.catalog.ListTests(ctx)
}

func (s *TestService) GetTest(ctx context.Context, id int64) (domain.Test, error) {
	return s.tests.GetTest(ctx, id)
}

// CreateTest persists a new test with its questions on behalf of an admin.
func (s *TestService) CreateTest(ctx context.Context, adminID int64, test domain.Test) (domain.Test, error) {
	test.AdminID = adminID
	test.CreatedAt = s.now()
	return s.catalog.CreateTest(ctx, test)
}

func (s *TestService) DeleteTest(ctx context.Context, id int64) error {
	return s.catalog.DeleteTest(ctx, id)
}
