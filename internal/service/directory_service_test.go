package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/repository"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

type failingSubscribeStore struct {
	StudentStore
	err error
}

func (f failingSubscribeStore) Subscribe(ctx context.Context, onChange repository.SnapshotFunc) (repository.Unsubscribe, error) {
	return nil, f.err
}

func TestDirectoryServiceListBeforeStart(t *testing.T) {
	svc := NewDirectoryService(repository.NewMemoryStudentRepository(), nil, nil)
	_, err := svc.List(directory.DefaultQuery())
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)
	assert.False(t, svc.Ready())
}

func TestDirectoryServiceFollowsStore(t *testing.T) {
	store := repository.NewMemoryStudentRepository()
	store.Seed(
		models.Student{ID: "1", FirstName: "Ana", LastName: "García", Status: models.StatusActive},
		models.Student{ID: "2", FirstName: "Luis", LastName: "Pérez", Status: models.StatusInactive},
	)
	metrics := NewMetricsService()
	svc := NewDirectoryService(store, metrics, nil)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Close()

	q := directory.DefaultQuery()
	q.Status = "activo"
	view, err := svc.List(q)
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "1", view[0].ID)

	require.NoError(t, store.Remove(context.Background(), "1"))
	view, err = svc.List(q)
	require.NoError(t, err)
	assert.Empty(t, view)

	all, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, int64(1), metrics.Snapshot().DirectorySize)
}

func TestDirectoryServiceCloseStopsUpdates(t *testing.T) {
	store := repository.NewMemoryStudentRepository()
	svc := NewDirectoryService(store, nil, nil)
	require.NoError(t, svc.Start(context.Background()))
	svc.Close()
	svc.Close()

	store.Seed(models.Student{ID: "1"})
	all, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDirectoryServiceSubscriptionFailure(t *testing.T) {
	svc := NewDirectoryService(failingSubscribeStore{err: errors.New("permission denied")}, nil, nil)
	err := svc.Start(context.Background())
	assert.Equal(t, appErrors.ErrStoreSubscription.Code, appErrors.FromError(err).Code)
}

func TestDirectoryServiceWaitReady(t *testing.T) {
	svc := NewDirectoryService(repository.NewMemoryStudentRepository(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := svc.WaitReady(ctx)
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Close()
	assert.NoError(t, svc.WaitReady(context.Background()))
}
