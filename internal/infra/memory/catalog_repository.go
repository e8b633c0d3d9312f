package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"voice-quiz-control/internal/domain"
)

// CatalogLoader fetches the quiz catalog from a backing store (YAML file, Postgres).
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) ([]domain.QuizQuestion, error)
}

// CatalogRepository caches the catalog with TTL to avoid repeated backing-store hits.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    []domain.QuizQuestion
	expiresAt time.Time
}

func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetCatalog(ctx context.Context) ([]domain.QuizQuestion, error) {
	if questions, ok := r.fresh(r.clock()); ok {
		return questions, nil
	}

	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		now := r.clock()
		if questions, ok := r.fresh(now); ok {
			return questions, nil
		}

		questions, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return nil, err
		}
		if err := domain.ValidateCatalog(questions); err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cached = questions
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuizQuestion), nil
}

func (r *CatalogRepository) fresh(now time.Time) ([]domain.QuizQuestion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached != nil && r.expiresAt.After(now) {
		return r.cached, true
	}
	return nil, false
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader serves a fixed catalog (config file, built-in default, tests).
type StaticCatalogLoader struct {
	questions []domain.QuizQuestion
}

func NewStaticCatalogLoader(questions []domain.QuizQuestion) *StaticCatalogLoader {
	return &StaticCatalogLoader{questions: questions}
}

func (l *StaticCatalogLoader) LoadCatalog(_ context.Context) ([]domain.QuizQuestion, error) {
	if len(l.questions) == 0 {
		return nil, domain.ErrCatalogNotFound
	}
	return domain.CloneQuestions(l.questions), nil
}
