package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/pslgod1/DigitalTest/internal/domain"
)

// TestLoader fetches test content from a backing store (e.g. Postgres).
type TestLoader interface {
	LoadTest(ctx context.Context, testID int64) (domain.Test, error)
}

// TestRepository caches test content in Redis (one JSON value per test) and
// falls back to a loader on cache miss. Stored as: SET test:{id}:content.
type TestRepository struct {
	client *redis.Client
	loader TestLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewTestRepository(client *redis.Client, loader TestLoader, ttl time.Duration) *TestRepository {
	return &TestRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID int64) (domain.Test, error) {
	key := r.contentKey(testID)

	cached, err := r.client.Get(ctx, key).Result()
	if err == nil {
		return decodeTest(cached)
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := r.client.Get(ctx, key).Result()
		if err == nil {
			return decodeTest(cached)
		}

		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}

		encoded, err := json.Marshal(test)
		if err != nil {
			return domain.Test{}, err
		}
		_ = r.client.Set(ctx, key, encoded, r.ttlWithJitter()).Err()

		return test, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

func (r *TestRepository) contentKey(testID int64) string {
	return "test:" + strconv.FormatInt(testID, 10) + ":content"
}

func decodeTest(raw string) (domain.Test, error) {
	var test domain.Test
	if err := json.Unmarshal([]byte(raw), &test); err != nil {
		return domain.Test{}, err
	}
	return test, nil
}

func (r *TestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
