package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/isdm-app/isdm-api/internal/models"
)

// ErrExportJobNotFound is returned for unknown export job ids.
var ErrExportJobNotFound = errors.New("export job not found")

// ExportJobRepository keeps export job metadata for the lifetime of the process.
type ExportJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]models.ExportJob
}

// NewExportJobRepository constructs the repository.
func NewExportJobRepository() *ExportJobRepository {
	return &ExportJobRepository{jobs: make(map[string]models.ExportJob)}
}

// Create stores job, filling in id, status and creation time when unset.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

// GetByID returns a copy of the job.
func (r *ExportJobRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrExportJobNotFound
	}
	return &job, nil
}

// UpdateExportJobParams defines the mutable fields.
type UpdateExportJobParams struct {
	Status       *models.ExportStatus
	Progress     *int
	ResultURL    *string
	ExpiresAt    *time.Time
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies the provided changes to a job.
func (r *ExportJobRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrExportJobNotFound
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		url := *params.ResultURL
		job.ResultURL = &url
	}
	if params.ExpiresAt != nil {
		at := *params.ExpiresAt
		job.ExpiresAt = &at
	}
	if params.ErrorMessage != nil {
		if *params.ErrorMessage == "" {
			job.ErrorMessage = nil
		} else {
			msg := *params.ErrorMessage
			job.ErrorMessage = &msg
		}
	}
	if params.FinishedAt != nil {
		at := *params.FinishedAt
		job.FinishedAt = &at
	}
	r.jobs[id] = job
	return nil
}

// ListFinishedBefore returns finished or failed jobs completed before cutoff,
// oldest first.
func (r *ExportJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	out := make([]models.ExportJob, 0)
	for _, job := range r.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.Before(*out[j].FinishedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete forgets a job.
func (r *ExportJobRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}
