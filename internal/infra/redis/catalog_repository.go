package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"voice-quiz-control/internal/domain"
)

// CatalogLoader fetches the catalog from a backing store (e.g., Postgres).
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.QuizQuestion, error)
}

// CatalogRepository caches the ordered catalog in Redis and falls back to a loader on cache miss.
// The catalog is stored as one JSON array so question and option order survive the round trip:
//
//	SET quiz:catalog [{"id":..,"question":..,"options":{"A":..},"correctAnswer":..}, ...]
type CatalogRepository struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const catalogKey = "quiz:catalog"

func (r *CatalogRepository) GetCatalog(ctx context.Context) ([]domain.QuizQuestion, error) {
	if questions, ok := r.cached(ctx); ok {
		return questions, nil
	}

	result, err, _ := r.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := r.cached(ctx); ok {
			return questions, nil
		}

		questions, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		if err := domain.ValidateCatalog(questions); err != nil {
			return nil, err
		}

		data, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("encode catalog: %w", err)
		}
		// best-effort: a failed write only costs a reload next time
		_ = r.client.Set(ctx, catalogKey, data, r.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuizQuestion), nil
}

// Invalidate drops the cached catalog so the next read goes to the loader.
func (r *CatalogRepository) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, catalogKey).Err()
}

func (r *CatalogRepository) cached(ctx context.Context) ([]domain.QuizQuestion, bool) {
	data, err := r.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.QuizQuestion
	if err := json.Unmarshal(data, &questions); err != nil || len(questions) == 0 {
		return nil, false
	}
	return questions, true
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
