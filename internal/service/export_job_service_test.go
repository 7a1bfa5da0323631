package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/repository"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
	"github.com/isdm-app/isdm-api/pkg/jobs"
	"github.com/isdm-app/isdm-api/pkg/storage"
)

type recordingDispatcher struct {
	jobs []jobs.Job
	err  error
}

func (d *recordingDispatcher) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type brokenLister struct{}

func (brokenLister) List(q directory.Query) ([]models.Student, error) {
	return nil, errors.New("directory offline")
}

const testDownloadPrefix = "/api/v1/exports/download/"

func newExportJobFixture(t *testing.T, lister viewLister) (*ExportJobService, *recordingDispatcher, *repository.ExportJobRepository) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := repository.NewExportJobRepository()
	dispatcher := &recordingDispatcher{}
	svc := NewExportJobService(repo, lister, NewExportService(nil, nil, nil), files,
		storage.NewSignedURLSigner("secret", time.Hour), nil,
		ExportJobConfig{DownloadPrefix: testDownloadPrefix, ResultTTL: time.Hour, MaxRetries: 2})
	svc.SetQueue(dispatcher)
	return svc, dispatcher, repo
}

func startedDirectory(t *testing.T) *DirectoryService {
	t.Helper()
	store := repository.NewMemoryStudentRepository()
	store.Seed(
		models.Student{ID: "1", FirstName: "Ana", LastName: "García", DNI: "30111222", Status: models.StatusActive},
		models.Student{ID: "2", FirstName: "Luis", LastName: "Pérez", DNI: "28999111", Status: models.StatusInactive},
	)
	dir := NewDirectoryService(store, nil, nil)
	require.NoError(t, dir.Start(context.Background()))
	t.Cleanup(dir.Close)
	return dir
}

func TestExportJobServiceCreateJobQueues(t *testing.T) {
	svc, dispatcher, _ := newExportJobFixture(t, startedDirectory(t))

	job, err := svc.CreateJob(context.Background(), ExportRequest{Format: "CSV", Status: "activo"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.Equal(t, models.ExportFormatCSV, job.Params.Format)
	assert.Equal(t, "activo", job.Params.Status)
	assert.Equal(t, string(directory.SortAZ), job.Params.SortBy)
	require.Len(t, dispatcher.jobs, 1)
	assert.Equal(t, job.ID, dispatcher.jobs[0].ID)
	assert.Equal(t, ExportJobType, dispatcher.jobs[0].Type)
}

func TestExportJobServiceCreateJobRejectsBadInput(t *testing.T) {
	svc, dispatcher, _ := newExportJobFixture(t, startedDirectory(t))

	_, err := svc.CreateJob(context.Background(), ExportRequest{Format: "xlsx"}, "admin")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(context.Background(), ExportRequest{Format: "csv", SortBy: "dni"}, "admin")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, dispatcher.jobs)
}

func TestExportJobServiceCreateJobQueueFull(t *testing.T) {
	svc, dispatcher, repo := newExportJobFixture(t, startedDirectory(t))
	dispatcher.err = jobs.ErrQueueFull

	_, err := svc.CreateJob(context.Background(), ExportRequest{Format: "pdf"}, "admin")
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)

	failed, err := repo.ListFinishedBefore(context.Background(), time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, models.ExportStatusFailed, failed[0].Status)
}

func TestExportJobServiceHandleAndDownload(t *testing.T) {
	svc, dispatcher, _ := newExportJobFixture(t, startedDirectory(t))
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, ExportRequest{Format: "csv", SortBy: "z-a"}, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.Handle(ctx, dispatcher.jobs[0]))

	done, err := svc.GetStatus(ctx, job.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.ResultURL)
	require.NotNil(t, done.ExpiresAt)
	assert.True(t, strings.HasPrefix(*done.ResultURL, testDownloadPrefix))

	download, err := svc.ResolveDownload(ctx, strings.TrimPrefix(*done.ResultURL, testDownloadPrefix))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv; charset=utf-8", download.ContentType)
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))

	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "Pérez,Luis"))
	assert.True(t, strings.HasPrefix(lines[2], "García,Ana"))
}

func TestExportJobServiceGetStatusOwnership(t *testing.T) {
	svc, _, _ := newExportJobFixture(t, startedDirectory(t))
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, ExportRequest{Format: "csv"}, "admin")
	require.NoError(t, err)

	_, err = svc.GetStatus(ctx, job.ID, "someone-else")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetStatus(ctx, "missing", "admin")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportJobServiceHandleRetriesThenFails(t *testing.T) {
	svc, dispatcher, _ := newExportJobFixture(t, brokenLister{})
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, ExportRequest{Format: "csv"}, "admin")
	require.NoError(t, err)

	queued := dispatcher.jobs[0]
	require.Error(t, svc.Handle(ctx, queued))
	retry, err := svc.GetStatus(ctx, job.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, retry.Status)
	require.NotNil(t, retry.ErrorMessage)

	queued.Attempt = 2
	require.Error(t, svc.Handle(ctx, queued))
	failed, err := svc.GetStatus(ctx, job.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, failed.Status)
	assert.Equal(t, "directory offline", *failed.ErrorMessage)
	assert.NotNil(t, failed.FinishedAt)
}

func TestExportJobServiceResolveDownloadRejectsTokens(t *testing.T) {
	svc, _, _ := newExportJobFixture(t, startedDirectory(t))

	_, err := svc.ResolveDownload(context.Background(), "not-a-token")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	token, _, err := storage.NewSignedURLSigner("secret", time.Hour).Generate("unknown-job", "unknown-job/a.csv")
	require.NoError(t, err)
	_, err = svc.ResolveDownload(context.Background(), token)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportJobServiceCleanupRemovesExpiredResults(t *testing.T) {
	svc, dispatcher, repo := newExportJobFixture(t, startedDirectory(t))
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, ExportRequest{Format: "csv"}, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.Handle(ctx, dispatcher.jobs[0]))
	done, err := svc.GetStatus(ctx, job.ID, "admin")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	svc.cleanupExpired(ctx)

	_, err = repo.GetByID(ctx, job.ID)
	assert.ErrorIs(t, err, repository.ErrExportJobNotFound)
	_, err = svc.ResolveDownload(ctx, strings.TrimPrefix(*done.ResultURL, testDownloadPrefix))
	assert.Error(t, err)
}
