package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/repository"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

// DirectoryService holds one standing subscription to the record store and
// answers stateless directory queries from the latest snapshot.
type DirectoryService struct {
	store   StudentStore
	metrics *MetricsService
	logger  *zap.Logger

	mu          sync.RWMutex
	students    []models.Student
	ready       bool
	unsubscribe repository.Unsubscribe

	loaded     chan struct{}
	loadedOnce sync.Once
}

// NewDirectoryService constructs the service. Call Start before serving queries.
func NewDirectoryService(store StudentStore, metrics *MetricsService, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{store: store, metrics: metrics, logger: logger, loaded: make(chan struct{})}
}

// Start opens the subscription. The listener lives until Close or ctx ends.
func (s *DirectoryService) Start(ctx context.Context) error {
	unsubscribe, err := s.store.Subscribe(ctx, s.onSnapshot)
	if err != nil {
		s.logger.Error("student subscription failed", zap.Error(err))
		return appErrors.ErrStoreSubscription.With(err, "could not subscribe to students")
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

func (s *DirectoryService) onSnapshot(students []models.Student) {
	s.mu.Lock()
	s.students = students
	s.ready = true
	s.mu.Unlock()
	s.loadedOnce.Do(func() { close(s.loaded) })
	s.metrics.ObserveSnapshot(len(students))
	s.logger.Debug("student snapshot received", zap.Int("count", len(students)))
}

// Ready reports whether at least one snapshot has arrived.
func (s *DirectoryService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// WaitReady blocks until the first snapshot arrives or ctx ends.
func (s *DirectoryService) WaitReady(ctx context.Context) error {
	select {
	case <-s.loaded:
		return nil
	case <-ctx.Done():
		return appErrors.ErrServiceUnavailable.With(ctx.Err(), "student directory is not loaded yet")
	}
}

// Snapshot returns a copy of the latest collection.
func (s *DirectoryService) Snapshot() ([]models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "student directory is not loaded yet")
	}
	out := make([]models.Student, len(s.students))
	copy(out, s.students)
	return out, nil
}

// List derives the directory view for q from the latest snapshot.
func (s *DirectoryService) List(q directory.Query) ([]models.Student, error) {
	s.mu.RLock()
	ready, students := s.ready, s.students
	s.mu.RUnlock()
	if !ready {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "student directory is not loaded yet")
	}

	start := time.Now()
	view := directory.View(students, q)
	s.metrics.ObserveView(time.Since(start))
	return view, nil
}

// Close releases the subscription.
func (s *DirectoryService) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
