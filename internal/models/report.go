package models

import "time"

// ReportFormat selects the rendering target for ledger exports.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus tracks the async export pipeline.
type ReportStatus string

const (
	ReportStatusQueued    ReportStatus = "queued"
	ReportStatusRunning   ReportStatus = "running"
	ReportStatusCompleted ReportStatus = "completed"
	ReportStatusFailed    ReportStatus = "failed"
)

// ReportJob describes one requested ledger export.
type ReportJob struct {
	ID          string       `json:"id"`
	Format      ReportFormat `json:"format"`
	RequestedBy string       `json:"requestedBy"`
	Status      ReportStatus `json:"status"`
	FilePath    string       `json:"-"`
	DownloadURL string       `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}
