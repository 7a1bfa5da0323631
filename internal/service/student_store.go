package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/repository"
)

// StudentStore is the record store contract every backend satisfies.
type StudentStore interface {
	Subscribe(ctx context.Context, onChange repository.SnapshotFunc) (repository.Unsubscribe, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student models.Student) (string, error)
	Update(ctx context.Context, id string, fields models.StudentFields) error
	Remove(ctx context.Context, id string) error
}

var (
	_ StudentStore = (*repository.MemoryStudentRepository)(nil)
	_ StudentStore = (*repository.FirestoreStudentRepository)(nil)
	_ StudentStore = (*repository.MongoStudentRepository)(nil)
	_ StudentStore = (*repository.StudentRepository)(nil)
	_ StudentStore = (*CachedStudentStore)(nil)
)

func studentCacheKey(id string) string {
	return "students:" + id
}

// CachedStudentStore serves point reads through the cache and invalidates the
// entry after every write to the same id. Subscriptions pass straight through.
type CachedStudentStore struct {
	StudentStore
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedStudentStore wraps store with cache. A disabled cache makes it a
// transparent pass-through.
func NewCachedStudentStore(store StudentStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CachedStudentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStudentStore{StudentStore: store, cache: cache, ttl: ttl, logger: logger}
}

// Get returns the cached record when present, loading and caching it otherwise.
func (s *CachedStudentStore) Get(ctx context.Context, id string) (*models.Student, error) {
	key := studentCacheKey(id)
	var cached models.Student
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		cached.ID = id
		return &cached, nil
	}

	student, err := s.StudentStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, student, s.ttl); err != nil {
		s.logger.Debug("student cache fill failed", zap.String("id", id), zap.Error(err))
	}
	return student, nil
}

// Update writes through and drops the cached copy.
func (s *CachedStudentStore) Update(ctx context.Context, id string, fields models.StudentFields) error {
	err := s.StudentStore.Update(ctx, id, fields)
	s.evict(ctx, id)
	return err
}

// Remove deletes through and drops the cached copy.
func (s *CachedStudentStore) Remove(ctx context.Context, id string) error {
	err := s.StudentStore.Remove(ctx, id)
	s.evict(ctx, id)
	return err
}

func (s *CachedStudentStore) evict(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, studentCacheKey(id)); err != nil {
		s.logger.Warn("student cache eviction failed", zap.String("id", id), zap.Error(err))
	}
}
