package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/libops/library-api/internal/models"
	appErrors "github.com/libops/library-api/pkg/errors"
	"github.com/libops/library-api/pkg/export"
	"github.com/libops/library-api/pkg/jobs"
	"github.com/libops/library-api/pkg/storage"
)

const reportJobType = "ledger_export"

type reportPayload struct {
	ReportID string
	Format   models.ReportFormat
	Filter   models.TransactionFilter
}

type exporter interface {
	Render(ledger export.Ledger) ([]byte, error)
}

// ReportService generates ledger exports asynchronously. A request enqueues a
// background job; the worker renders the export, saves it to local storage and
// attaches a signed download URL. Job state lives in memory only, a restart
// drops pending jobs but never the exported files.
type ReportService struct {
	ledger ledgerReader
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
	csv    exporter
	pdf    exporter
	queue  *jobs.Queue

	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
	retain  time.Duration

	mu      sync.RWMutex
	reports map[string]*models.ReportJob
}

// NewReportService constructs the service and its worker queue. Call Start
// before enqueuing requests.
func NewReportService(ledger ledgerReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, retain time.Duration, workers, retries int, logger *zap.Logger) *ReportService {
	s := &ReportService{
		ledger:  ledger,
		store:   store,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		now:     time.Now,
		retain:  retain,
		reports: make(map[string]*models.ReportJob),
	}
	s.queue = jobs.NewQueue("reports", s.process, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		Logger:     logger,
	})
	return s
}

// WithMetrics attaches Prometheus counters to the export pipeline.
func (s *ReportService) WithMetrics(m *Metrics) *ReportService {
	s.metrics = m
	return s
}

// Start launches the report workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Request enqueues a new ledger export and returns its queued job record.
func (s *ReportService) Request(ctx context.Context, format models.ReportFormat, filter models.TransactionFilter, actor Actor) (*models.ReportJob, error) {
	switch format {
	case models.ReportFormatCSV, models.ReportFormatPDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}

	report := &models.ReportJob{
		ID:          uuid.NewString(),
		Format:      format,
		RequestedBy: actor.ID,
		Status:      models.ReportStatusQueued,
		CreatedAt:   s.now().UTC(),
	}
	s.mu.Lock()
	s.reports[report.ID] = report
	s.mu.Unlock()

	err := s.queue.Enqueue(jobs.Job{
		ID:   report.ID,
		Type: reportJobType,
		Payload: reportPayload{
			ReportID: report.ID,
			Format:   format,
			Filter:   filter,
		},
	})
	if err != nil {
		s.fail(report.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "enqueue report")
	}
	return s.Get(report.ID, actor)
}

// Get returns the report job. Requesters only see their own reports.
func (s *ReportService) Get(id string, actor Actor) (*models.ReportJob, error) {
	s.mu.RLock()
	report, ok := s.reports[id]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
	}
	if !actor.IsAdmin() && report.RequestedBy != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report belongs to another user")
	}
	copied := *report
	return &copied, nil
}

// OpenDownload validates a signed token and opens the exported file.
func (s *ReportService) OpenDownload(token string) (*os.File, string, error) {
	reportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		s.logger.Warn("report file missing", zap.String("report_id", reportID), zap.Error(err))
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report file no longer available")
	}
	return file, relPath, nil
}

// CleanupExpired removes export files older than the retention window.
func (s *ReportService) CleanupExpired() {
	deleted, err := s.store.CleanupOlderThan(s.retain)
	if err != nil {
		s.logger.Warn("report cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("expired reports removed", zap.Int("count", len(deleted)))
	}
}

func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(reportPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	s.setStatus(payload.ReportID, models.ReportStatusRunning)

	transactions, err := s.ledger.List(ctx, payload.Filter)
	if err != nil {
		s.fail(payload.ReportID, err)
		return fmt.Errorf("load ledger for report %s: %w", payload.ReportID, err)
	}

	ledger := export.LedgerFromTransactions("Circulation Ledger", transactions)
	var renderer exporter
	switch payload.Format {
	case models.ReportFormatPDF:
		renderer = s.pdf
	default:
		renderer = s.csv
	}

	data, err := renderer.Render(ledger)
	if err != nil {
		s.fail(payload.ReportID, err)
		s.countRender(payload.Format, "failure")
		return fmt.Errorf("render report %s: %w", payload.ReportID, err)
	}

	filename := fmt.Sprintf("%s/%s.%s", s.now().UTC().Format("2006-01-02"), payload.ReportID, payload.Format)
	relPath, err := s.store.Save(filename, data)
	if err != nil {
		s.fail(payload.ReportID, err)
		return fmt.Errorf("store report %s: %w", payload.ReportID, err)
	}

	token, expiresAt, err := s.signer.Generate(payload.ReportID, relPath)
	if err != nil {
		s.fail(payload.ReportID, err)
		return fmt.Errorf("sign report url %s: %w", payload.ReportID, err)
	}

	completedAt := s.now().UTC()
	s.mu.Lock()
	if report, ok := s.reports[payload.ReportID]; ok {
		report.Status = models.ReportStatusCompleted
		report.FilePath = relPath
		report.DownloadURL = fmt.Sprintf("/reports/download?token=%s", token)
		report.ExpiresAt = &expiresAt
		report.CompletedAt = &completedAt
		report.Error = ""
	}
	s.mu.Unlock()
	s.countRender(payload.Format, "success")
	return nil
}

func (s *ReportService) countRender(format models.ReportFormat, outcome string) {
	if s.metrics != nil {
		s.metrics.ReportsRendered.WithLabelValues(string(format), outcome).Inc()
	}
}

func (s *ReportService) setStatus(id string, status models.ReportStatus) {
	s.mu.Lock()
	if report, ok := s.reports[id]; ok {
		report.Status = status
	}
	s.mu.Unlock()
}

func (s *ReportService) fail(id string, err error) {
	s.mu.Lock()
	if report, ok := s.reports[id]; ok {
		report.Status = models.ReportStatusFailed
		report.Error = err.Error()
	}
	s.mu.Unlock()
}
