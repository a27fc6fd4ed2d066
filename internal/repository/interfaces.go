package repository

import (
	"context"
	"errors"

	"github.com/vetfieldhq/vetfield/internal/domain"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches no stored row.
	ErrNotFound = errors.New("not found")

	// ErrExportJobStatusConflict signals an illegal export job status
	// transition, e.g. marking a cancelled job as running.
	ErrExportJobStatusConflict = errors.New("export job status conflict")
)

// ClientLookup carries the owner attributes reconciliation matches on.
// Blank fields are ignored by the lookup.
type ClientLookup struct {
	Name       string
	NationalID string
	Phone      string
	Village    string
}

// IsEmpty reports whether every lookup field is blank.
func (l ClientLookup) IsEmpty() bool {
	return l.Name == "" && l.NationalID == "" && l.Phone == "" && l.Village == ""
}

// ClientRepository defines the interface for livestock owner operations.
type ClientRepository interface {
	// FindOneByAny returns the first client matching any non-blank lookup
	// field exactly; ErrNotFound when nothing matches.
	FindOneByAny(ctx context.Context, lookup ClientLookup) (domain.Client, error)
	FindOneByNationalID(ctx context.Context, nationalID string) (domain.Client, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error)
	Insert(ctx context.Context, client domain.Client) error
	Update(ctx context.Context, client domain.Client) error
	CountByNationalID(ctx context.Context, nationalID string) (int64, error)
}

// VisitRepository defines the interface for canonical field-visit records.
type VisitRepository interface {
	Insert(ctx context.Context, record domain.CanonicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Visit, error)
	// CountBySerial reports how many visits of the type already carry the
	// serial; the import pipeline pre-checks this before inserting.
	CountBySerial(ctx context.Context, recordType domain.RecordType, serial string) (int64, error)
	// ListByType pages visits of one type, newest visit date first, and
	// returns the total count alongside the page.
	ListByType(ctx context.Context, recordType domain.RecordType, limit, offset int) ([]domain.Visit, int, error)
}

// ImportLogRepository stores finished import batch summaries for audit.
type ImportLogRepository interface {
	Record(ctx context.Context, run domain.ImportRun) error
	List(ctx context.Context, recordType *domain.RecordType, limit, offset int) ([]domain.ImportRun, error)
}

// ExportResult carries the file metadata written when an export completes.
type ExportResult struct {
	RowsExported int
	BytesWritten int64
	FilePath     *string
	FileMimeType *string
	FileByteSize *int64
}

// ExportJobRepository persists asynchronous export jobs and enforces
// their status transitions.
type ExportJobRepository interface {
	Create(ctx context.Context, job domain.ExportJob) (domain.ExportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ExportJob, error)
	List(ctx context.Context, statuses []domain.ExportJobStatus, limit, offset int) ([]domain.ExportJob, error)
	// MarkRunning moves a pending job to running; ErrExportJobStatusConflict
	// when the job is no longer pending.
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, result ExportResult) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error
	UpdateProgress(ctx context.Context, id uuid.UUID, rowsExported int, bytesWritten int64, rowsRequested *int) error
}
