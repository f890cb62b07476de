package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

type countingLoader struct {
	loads int64
	tests map[int64]domain.Test
}

func (l *countingLoader) LoadTest(_ context.Context, testID int64) (domain.Test, error) {
	atomic.AddInt64(&l.loads, 1)
	test, ok := l.tests[testID]
	if !ok {
		return domain.Test{}, domain.ErrTestNotFound
	}
	return test, nil
}

func sampleTest() domain.Test {
	return domain.Test{
		ID:    1,
		Title: "Sample",
		Questions: []domain.Question{
			{ID: 1, TestID: 1, Text: "q", Answers: []string{"a", "b"}, CorrectAnswerIndex: 1, Type: "SINGLE"},
		},
	}
}

func TestRedisTestRepositoryCachesContent(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	loader := &countingLoader{tests: map[int64]domain.Test{1: sampleTest()}}
	repo := NewTestRepository(client, loader, time.Minute)

	first, err := repo.GetTest(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.Title != "Sample" || len(first.Questions) != 1 {
		t.Fatalf("unexpected test %+v", first)
	}

	if _, err := repo.GetTest(ctx, 1); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if got := atomic.LoadInt64(&loader.loads); got != 1 {
		t.Fatalf("loader hit %d times, want 1", got)
	}

	// After expiry the next read goes back to the loader.
	mr.FastForward(2 * time.Minute)
	if _, err := repo.GetTest(ctx, 1); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got := atomic.LoadInt64(&loader.loads); got != 2 {
		t.Fatalf("loader hit %d times after expiry, want 2", got)
	}
}

func TestRedisTestRepositoryConcurrentMiss(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	loader := &countingLoader{tests: map[int64]domain.Test{1: sampleTest()}}
	repo := NewTestRepository(client, loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetTest(ctx, 1); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()

	// Singleflight collapses the stampede to a handful of loads at most.
	if got := atomic.LoadInt64(&loader.loads); got > 2 {
		t.Fatalf("loader hit %d times under concurrent miss", got)
	}
}

func TestRedisTestRepositoryUnknownTest(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	loader := &countingLoader{tests: map[int64]domain.Test{}}
	repo := NewTestRepository(client, loader, time.Minute)

	_, err := repo.GetTest(context.Background(), 99)
	if !errors.Is(err, domain.ErrTestNotFound) {
		t.Fatalf("expected ErrTestNotFound, got %v", err)
	}
}
