package service

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/repository"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
	"github.com/isdm-app/isdm-api/pkg/jobs"
)

// ExportJobType is the queue job type for directory exports.
const ExportJobType = "students.export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
	Delete(ctx context.Context, id string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type viewLister interface {
	List(q directory.Query) ([]models.Student, error)
}

type exportFileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type downloadSigner interface {
	Generate(ownerID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (string, string, time.Time, error)
}

// ExportJobConfig governs result lifetime and cleanup.
type ExportJobConfig struct {
	// DownloadPrefix is prepended to the signed token to form the result URL.
	DownloadPrefix  string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ExportRequest asks for an asynchronous export of a directory view.
type ExportRequest struct {
	Format string `json:"format"`
	Search string `json:"search"`
	SortBy string `json:"sortBy"`
	Status string `json:"status"`
	Career string `json:"career"`
}

// ExportDownload is an opened export result.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportJobService runs directory exports in the background and hands out
// signed download links for the results.
type ExportJobService struct {
	repo      exportJobStore
	queue     jobDispatcher
	directory viewLister
	renderer  exportRenderer
	storage   exportFileStorage
	signer    downloadSigner
	logger    *zap.Logger
	cfg       ExportJobConfig
	now       func() time.Time
}

type exportRenderer interface {
	Render(students []models.Student, q directory.Query, format ExportFormat) (*ExportFile, error)
}

// NewExportJobService constructs the service. CreateJob fails until SetQueue is called.
func NewExportJobService(repo exportJobStore, dir viewLister, renderer exportRenderer, storage exportFileStorage, signer downloadSigner, logger *zap.Logger, cfg ExportJobConfig) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ExportJobService{
		repo:      repo,
		directory: dir,
		renderer:  renderer,
		storage:   storage,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetQueue attaches the dispatcher used by CreateJob.
func (s *ExportJobService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob validates req, records the job and queues it.
func (s *ExportJobService) CreateJob(ctx context.Context, req ExportRequest, actorID string) (*models.ExportJob, error) {
	format, err := ParseExportFormat(req.Format)
	if err != nil {
		return nil, err
	}
	q, err := directory.ParseQuery(req.Search, req.SortBy, req.Status, req.Career)
	if err != nil {
		return nil, appErrors.ErrValidation.With(err, err.Error())
	}

	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "export queue is not running")
	}

	job := &models.ExportJob{
		Params: models.ExportParams{
			Format: format,
			Search: q.Search,
			SortBy: string(q.SortBy),
			Status: q.Status,
			Career: q.Career,
		},
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.ErrInternal.With(err, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
		s.fail(ctx, job.ID, "failed to enqueue job")
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.ErrServiceUnavailable.With(err, "too many exports in progress")
		}
		return nil, appErrors.ErrInternal.With(err, "failed to enqueue export job")
	}
	s.logger.Info("export job queued", zap.String("job_id", job.ID), zap.String("format", string(format)), zap.String("user_id", actorID))
	return job, nil
}

// GetStatus returns the job if actorID created it.
func (s *ExportJobService) GetStatus(ctx context.Context, id, actorID string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrExportJobNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.ErrInternal.With(err, "failed to load export job")
	}
	if job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	return job, nil
}

// ResolveDownload validates token and opens the stored export.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.ErrForbidden.With(err, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if job.Status != models.ExportStatusFinished || job.ResultURL == nil || *job.ResultURL != s.downloadURL(token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not available")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.ErrNotFound.With(err, "export file no longer available")
	}
	contentType := "text/csv; charset=utf-8"
	if job.Params.Format == ExportPDF {
		contentType = "application/pdf"
	}
	return &ExportDownload{File: file, Filename: path.Base(relPath), ContentType: contentType, ExpiresAt: expiresAt}, nil
}

// Handle renders one queued export. It is the queue's handler.
func (s *ExportJobService) Handle(ctx context.Context, queued jobs.Job) error {
	job, err := s.repo.GetByID(ctx, queued.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	url, expiresAt, err := s.generate(job)
	if err != nil {
		if queued.Attempt >= s.cfg.MaxRetries {
			s.fail(ctx, job.ID, err.Error())
		} else {
			queuedStatus := models.ExportStatusQueued
			reset := 0
			msg := err.Error()
			_ = s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &queuedStatus, Progress: &reset, ErrorMessage: &msg})
		}
		return err
	}

	finished := models.ExportStatusFinished
	done := 100
	noError := ""
	now := s.now().UTC()
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &done,
		ResultURL:    &url,
		ExpiresAt:    &expiresAt,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		return err
	}
	s.logger.Info("export job finished", zap.String("job_id", job.ID))
	return nil
}

func (s *ExportJobService) generate(job *models.ExportJob) (string, time.Time, error) {
	q, err := directory.ParseQuery(job.Params.Search, job.Params.SortBy, job.Params.Status, job.Params.Career)
	if err != nil {
		return "", time.Time{}, err
	}
	students, err := s.directory.List(q)
	if err != nil {
		return "", time.Time{}, err
	}
	file, err := s.renderer.Render(students, q, job.Params.Format)
	if err != nil {
		return "", time.Time{}, err
	}
	relPath, err := s.storage.Save(path.Join(job.ID, file.Filename), file.Body)
	if err != nil {
		return "", time.Time{}, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.downloadURL(token), expiresAt, nil
}

func (s *ExportJobService) downloadURL(token string) string {
	return s.cfg.DownloadPrefix + token
}

func (s *ExportJobService) fail(ctx context.Context, id, msg string) {
	status := models.ExportStatusFailed
	progress := 100
	now := s.now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &status,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
}

// StartCleanup purges expired results every CleanupInterval until ctx ends.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ExportJobService) cleanupExpired(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("export cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range expired {
		if job.ResultURL != nil {
			token := strings.TrimPrefix(*job.ResultURL, s.cfg.DownloadPrefix)
			if _, relPath, _, err := s.signer.Parse(token, true); err == nil {
				if err := s.storage.Delete(relPath); err != nil {
					s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
				}
			}
		}
		_ = s.repo.Delete(ctx, job.ID)
	}
	if _, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
}
