package models

import "time"

// ExportFormat enumerates the directory export file types.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportStatus captures background export lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is an asynchronous export of one directory view.
type ExportJob struct {
	ID           string       `json:"id"`
	Params       ExportParams `json:"params"`
	Status       ExportStatus `json:"status"`
	Progress     int          `json:"progress"`
	ResultURL    *string      `json:"resultUrl,omitempty"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
	CreatedBy    string       `json:"createdBy"`
	CreatedAt    time.Time    `json:"createdAt"`
	FinishedAt   *time.Time   `json:"finishedAt,omitempty"`
	ErrorMessage *string      `json:"error,omitempty"`
}

// ExportParams is the view and format requested for an export.
type ExportParams struct {
	Format ExportFormat `json:"format"`
	Search string       `json:"search"`
	SortBy string       `json:"sortBy"`
	Status string       `json:"status"`
	Career string       `json:"career"`
}
