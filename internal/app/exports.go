package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/repository"
	"github.com/isdm-app/isdm-api/internal/service"
	"github.com/isdm-app/isdm-api/pkg/jobs"
	"github.com/isdm-app/isdm-api/pkg/storage"
)

// ExportJobs starts the background export pipeline. Workers and cleanup stop
// when ctx ends or Close runs.
func (r *Resources) ExportJobs(ctx context.Context, dir *service.DirectoryService, renderer *service.ExportService) (*service.ExportJobService, error) {
	cfg := r.cfg.Export
	files, err := storage.NewLocalStorage(cfg.Dir)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With(zap.String("component", "exports"))

	svc := service.NewExportJobService(
		repository.NewExportJobRepository(),
		dir,
		renderer,
		files,
		storage.NewSignedURLSigner(cfg.URLSecret, cfg.ResultTTL),
		logger,
		service.ExportJobConfig{
			DownloadPrefix:  r.cfg.APIPrefix + "/exports/download/",
			ResultTTL:       cfg.ResultTTL,
			CleanupInterval: cfg.CleanupInterval,
			MaxRetries:      cfg.MaxRetries,
		},
	)

	queue := jobs.NewQueue("exports", svc.Handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.QueueSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	svc.SetQueue(queue)
	queue.Start(ctx)
	r.closers = append(r.closers, func() error {
		queue.Stop()
		return nil
	})

	svc.StartCleanup(ctx)
	return svc, nil
}
