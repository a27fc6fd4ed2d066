package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/importer"
	"github.com/vetfieldhq/vetfield/internal/repository"
)

var errJobNotRunnable = errors.New("export job is no longer runnable")

// Service produces asynchronous CSV snapshots of persisted visit records,
// one worker goroutine per queued job.
type Service struct {
	visits  repository.VisitRepository
	clients repository.ClientRepository
	jobs    repository.ExportJobRepository
	tables  importer.Tables

	exportDir  string
	jobTimeout time.Duration
	pageSize   int
	now        func() time.Time

	downloadSigner *downloadSigner

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
}

// Option customizes an export service.
type Option func(*Service)

// WithExportDirectory sets where snapshot files are written.
func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

// WithJobTimeout bounds how long one export worker may run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

// WithPageSize sets how many visits are read per storage page.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithDownloadTokenTTL customizes the TTL for generated download links.
func WithDownloadTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.downloadSigner = newDownloadSigner(ttl)
		}
	}
}

// NewService wires the export subsystem.
func NewService(
	visits repository.VisitRepository,
	clients repository.ClientRepository,
	jobs repository.ExportJobRepository,
	tables importer.Tables,
	opts ...Option,
) *Service {
	service := &Service{
		visits:     visits,
		clients:    clients,
		jobs:       jobs,
		tables:     tables,
		exportDir:  filepath.Join(os.TempDir(), "vetfield-exports"),
		jobTimeout: 30 * time.Minute,
		pageSize:   1000,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.downloadSigner == nil {
		service.downloadSigner = newDownloadSigner(5 * time.Minute)
	}
	return service
}

// Queue validates the record type, persists a pending job sized by the
// current row count, and launches its worker.
func (s *Service) Queue(ctx context.Context, recordType domain.RecordType, actor uuid.UUID) (domain.ExportJob, error) {
	if _, ok := s.tables[recordType]; !ok {
		return domain.ExportJob{}, fmt.Errorf("%w: %q", domain.ErrUnknownRecordType, recordType)
	}
	_, total, err := s.visits.ListByType(ctx, recordType, 1, 0)
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("estimate export rows: %w", err)
	}
	job := domain.ExportJob{
		RecordType:    recordType,
		RowsRequested: total,
		RequestedBy:   actor,
	}
	persisted, err := s.jobs.Create(ctx, job)
	if err != nil {
		return domain.ExportJob{}, err
	}
	s.launchWorker(persisted)
	return persisted, nil
}

// GetJob returns the metadata for a single export job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	if id == uuid.Nil {
		return domain.ExportJob{}, errors.New("job ID is required")
	}
	return s.jobs.GetByID(ctx, id)
}

// ListJobs pages jobs in the given statuses, newest first.
func (s *Service) ListJobs(ctx context.Context, statuses []domain.ExportJobStatus, limit, offset int) ([]domain.ExportJob, error) {
	return s.jobs.List(ctx, statuses, limit, offset)
}

// CancelJob requests cancellation for a pending or running export job.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	if id == uuid.Nil {
		return domain.ExportJob{}, errors.New("job ID is required")
	}
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return domain.ExportJob{}, err
	}
	if job.Status != domain.ExportJobStatusPending && job.Status != domain.ExportJobStatusRunning {
		return job, fmt.Errorf("export job in status %s cannot be cancelled", job.Status)
	}
	if err := s.jobs.MarkCancelled(ctx, id, "Cancelled by user"); err != nil {
		if errors.Is(err, repository.ErrExportJobStatusConflict) {
			return s.jobs.GetByID(ctx, id)
		}
		return domain.ExportJob{}, err
	}
	if cancel, ok := s.workerCancels.LoadAndDelete(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}
	return s.jobs.GetByID(ctx, id)
}

// BuildDownloadURL signs a short-lived download URL for completed export files.
func (s *Service) BuildDownloadURL(job domain.ExportJob) (*string, error) {
	if job.Status != domain.ExportJobStatusCompleted {
		return nil, nil
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, nil
	}
	token := s.downloadSigner.Sign(job.ID, s.now())
	values := url.Values{}
	values.Set("token", token)
	download := fmt.Sprintf("/api/exports/files/%s?%s", job.ID.String(), values.Encode())
	return &download, nil
}

// ValidateDownloadToken ensures the token is valid for the given job.
func (s *Service) ValidateDownloadToken(jobID uuid.UUID, token string) error {
	return s.downloadSigner.Verify(jobID, token, s.now())
}

// OpenJobFile opens the completed export file for streaming to the client.
func (s *Service) OpenJobFile(job domain.ExportJob) (*os.File, error) {
	if job.Status != domain.ExportJobStatusCompleted {
		return nil, errors.New("export is not completed")
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, errors.New("export file is unavailable")
	}
	file, err := os.Open(*job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

func (s *Service) launchWorker(job domain.ExportJob) {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	ctx := baseCtx
	cancelFunc := baseCancel
	if s.jobTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(baseCtx, s.jobTimeout)
		ctx = timeoutCtx
		cancelFunc = func() {
			timeoutCancel()
			baseCancel()
		}
	}
	s.workerCancels.Store(job.ID, cancelFunc)
	go func() {
		defer func() {
			cancelFunc()
			s.workerCancels.Delete(job.ID)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[export] panic while processing job %s: %v", job.ID, rec)
				s.failJob(context.Background(), job.ID, fmt.Errorf("panic: %v", rec))
			}
		}()
		if err := s.run(ctx, job); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				log.Printf("[export] job %s cancelled", job.ID)
			case errors.Is(err, errJobNotRunnable):
				log.Printf("[export] job %s not runnable, skipping", job.ID)
			default:
				s.failJob(ctx, job.ID, err)
			}
		}
	}()
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, err error) {
	if err == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	if markErr := s.jobs.MarkFailed(ctx, jobID, truncateError(err)); markErr != nil {
		log.Printf("[export] failed to mark job %s as failed: %v (original error: %v)", jobID, markErr, err)
		return
	}
	log.Printf("[export] job %s failed: %v", jobID, err)
}

// run streams the job's record type page by page into a temp file, then
// promotes it and marks the job completed.
func (s *Service) run(ctx context.Context, job domain.ExportJob) error {
	table, ok := s.tables[job.RecordType]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownRecordType, job.RecordType)
	}
	if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
		if errors.Is(err, repository.ErrExportJobStatusConflict) {
			return errJobNotRunnable
		}
		return fmt.Errorf("mark export job running: %w", err)
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	tempFile, err := os.CreateTemp(s.exportDir, fmt.Sprintf("%s-*.csv", job.ID))
	if err != nil {
		return fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<20)
	counter := &countingWriter{writer: buffered}
	csvWriter := csv.NewWriter(counter)

	columns := exportColumns(table)
	headers := make([]string, len(columns))
	for i, column := range columns {
		headers[i] = column.header
	}
	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rowBuffer := make([]string, len(columns))
	clientCache := map[uuid.UUID]domain.Client{}
	rowsExported := 0
	rowsTarget := job.RowsRequested
	offset := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		visits, total, err := s.visits.ListByType(ctx, job.RecordType, s.pageSize, offset)
		if err != nil {
			return fmt.Errorf("list visits: %w", err)
		}
		if offset == 0 && total > 0 {
			rowsTarget = total
		}
		if len(visits) == 0 {
			break
		}
		for _, visit := range visits {
			client, err := s.lookupClient(ctx, visit.ClientID, clientCache)
			if err != nil {
				return err
			}
			for i, column := range columns {
				rowBuffer[i] = visitValue(visit, client, column.canonical)
			}
			if err := csvWriter.Write(rowBuffer); err != nil {
				return fmt.Errorf("write visit row: %w", err)
			}
			rowsExported++
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			return fmt.Errorf("flush rows: %w", err)
		}
		if err := buffered.Flush(); err != nil {
			return fmt.Errorf("flush buffered rows: %w", err)
		}
		var requestedPtr *int
		if rowsTarget > 0 {
			requestedPtr = &rowsTarget
		}
		if err := s.jobs.UpdateProgress(ctx, job.ID, rowsExported, counter.count, requestedPtr); err != nil {
			return fmt.Errorf("update export progress: %w", err)
		}
		if len(visits) < s.pageSize {
			break
		}
		offset += s.pageSize
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("final buffered flush: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}

	finalPath := filepath.Join(s.exportDir, finalFileName(job))
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("promote export file: %w", err)
	}
	cleanup = false
	info, err := os.Stat(finalPath)
	if err != nil {
		return fmt.Errorf("stat export file: %w", err)
	}
	size := info.Size()
	mime := "text/csv"
	bytesWritten := counter.count
	if bytesWritten == 0 {
		bytesWritten = size
	}
	if err := s.jobs.MarkCompleted(ctx, job.ID, repository.ExportResult{
		RowsExported: rowsExported,
		BytesWritten: bytesWritten,
		FilePath:     &finalPath,
		FileMimeType: &mime,
		FileByteSize: &size,
	}); err != nil {
		if errors.Is(err, repository.ErrExportJobStatusConflict) {
			// Cancelled while the last page was being written.
			_ = os.Remove(finalPath)
			return errJobNotRunnable
		}
		return fmt.Errorf("mark export completed: %w", err)
	}
	log.Printf("[export] job %s completed (rows=%d path=%s)", job.ID, rowsExported, finalPath)
	return nil
}

func (s *Service) lookupClient(ctx context.Context, id uuid.UUID, cache map[uuid.UUID]domain.Client) (domain.Client, error) {
	if client, ok := cache[id]; ok {
		return client, nil
	}
	client, err := s.clients.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Orphaned client reference; export the visit with blank owner
			// columns rather than failing the snapshot.
			cache[id] = domain.Client{ID: id}
			return cache[id], nil
		}
		return domain.Client{}, fmt.Errorf("load client %s: %w", id, err)
	}
	cache[id] = client
	return client, nil
}

func finalFileName(job domain.ExportJob) string {
	return fmt.Sprintf("%s-%s.csv", strings.ToLower(job.RecordType.TableType()), job.ID.String())
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 512
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
