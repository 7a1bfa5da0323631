package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/repository"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

type mapCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCacheRepo() *mapCacheRepo {
	return &mapCacheRepo{entries: map[string][]byte{}}
}

func (m *mapCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *mapCacheRepo) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

type countingStore struct {
	*repository.MemoryStudentRepository
	gets int
}

func (c *countingStore) Get(ctx context.Context, id string) (*models.Student, error) {
	c.gets++
	return c.MemoryStudentRepository.Get(ctx, id)
}

func TestCachedStudentStoreServesRepeatReadsFromCache(t *testing.T) {
	backend := &countingStore{MemoryStudentRepository: repository.NewMemoryStudentRepository()}
	backend.Seed(models.Student{ID: "1", FirstName: "Ana", LastName: "García"})
	metrics := NewMetricsService()
	cache := NewCacheService(newMapCacheRepo(), metrics, time.Minute, nil, true)
	store := NewCachedStudentStore(backend, cache, time.Minute, nil)

	first, err := store.Get(context.Background(), "1")
	require.NoError(t, err)
	second, err := store.Get(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.gets)
	assert.Equal(t, first.FullName(), second.FullName())
	assert.Equal(t, "1", second.ID)
	assert.InDelta(t, 0.5, metrics.Snapshot().CacheHitRatio, 0.001)
}

func TestCachedStudentStoreWritesEvict(t *testing.T) {
	backend := &countingStore{MemoryStudentRepository: repository.NewMemoryStudentRepository()}
	backend.Seed(models.Student{ID: "1", FirstName: "Ana"})
	store := NewCachedStudentStore(backend, NewCacheService(newMapCacheRepo(), nil, time.Minute, nil, true), time.Minute, nil)
	ctx := context.Background()

	_, err := store.Get(ctx, "1")
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, "1", models.StudentFields{"firstName": "Anabel"}))

	got, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Anabel", got.FirstName)
	assert.Equal(t, 2, backend.gets)

	require.NoError(t, store.Remove(ctx, "1"))
	_, err = store.Get(ctx, "1")
	assert.ErrorIs(t, err, repository.ErrStudentNotFound)
}

func TestCachedStudentStoreDisabledCachePassesThrough(t *testing.T) {
	backend := &countingStore{MemoryStudentRepository: repository.NewMemoryStudentRepository()}
	backend.Seed(models.Student{ID: "1"})
	store := NewCachedStudentStore(backend, NewCacheService(nil, nil, 0, nil, false), 0, nil)

	_, _ = store.Get(context.Background(), "1")
	_, _ = store.Get(context.Background(), "1")
	assert.Equal(t, 2, backend.gets)
}
