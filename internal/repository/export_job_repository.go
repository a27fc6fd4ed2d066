package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vetfieldhq/vetfield/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type exportJobRepository struct {
	pool *pgxpool.Pool
}

// NewExportJobRepository wires the Postgres store for export jobs. Status
// transitions are guarded in SQL so a cancelled job can never be revived
// by a slow worker.
func NewExportJobRepository(pool *pgxpool.Pool) ExportJobRepository {
	return &exportJobRepository{pool: pool}
}

const exportJobColumns = `id, record_type, status, rows_requested, rows_exported, bytes_written, file_path, file_mime_type, file_byte_size, error_message, requested_by, created_at, updated_at`

func (r *exportJobRepository) Create(ctx context.Context, job domain.ExportJob) (domain.ExportJob, error) {
	if r.pool == nil {
		return domain.ExportJob{}, fmt.Errorf("export job repository not initialized")
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	rowsRequested := job.RowsRequested
	if rowsRequested < 0 {
		rowsRequested = 0
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO export_jobs (id, record_type, status, rows_requested, requested_by)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID,
		string(job.RecordType),
		string(domain.ExportJobStatusPending),
		rowsRequested,
		job.RequestedBy,
	)
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("failed to insert export job: %w", err)
	}
	return r.GetByID(ctx, job.ID)
}

func (r *exportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	if r.pool == nil {
		return domain.ExportJob{}, fmt.Errorf("export job repository not initialized")
	}
	query := fmt.Sprintf(`SELECT %s FROM export_jobs WHERE id = $1`, exportJobColumns)
	job, err := scanExportJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExportJob{}, ErrNotFound
		}
		return domain.ExportJob{}, fmt.Errorf("failed to load export job: %w", err)
	}
	return job, nil
}

func (r *exportJobRepository) List(ctx context.Context, statuses []domain.ExportJobStatus, limit, offset int) ([]domain.ExportJob, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("export job repository not initialized")
	}
	if len(statuses) == 0 {
		return []domain.ExportJob{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	statusValues := make([]string, len(statuses))
	for i, status := range statuses {
		statusValues[i] = string(status)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM export_jobs WHERE status = ANY($1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		exportJobColumns,
	)
	rows, err := r.pool.Query(ctx, query, statusValues, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list export jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ExportJob{}
	for rows.Next() {
		job, scanErr := scanExportJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan export job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate export jobs: %w", rowsErr)
	}
	return jobs, nil
}

func (r *exportJobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("export job repository not initialized")
	}
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id,
		string(domain.ExportJobStatusRunning),
		string(domain.ExportJobStatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark export job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func (r *exportJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, result ExportResult) error {
	if r.pool == nil {
		return fmt.Errorf("export job repository not initialized")
	}

	filePath := pgtype.Text{}
	if result.FilePath != nil && *result.FilePath != "" {
		filePath = pgtype.Text{String: *result.FilePath, Valid: true}
	}
	fileMime := pgtype.Text{}
	if result.FileMimeType != nil && *result.FileMimeType != "" {
		fileMime = pgtype.Text{String: *result.FileMimeType, Valid: true}
	}
	fileSize := pgtype.Int8{}
	if result.FileByteSize != nil {
		fileSize = pgtype.Int8{Int64: *result.FileByteSize, Valid: true}
	}
	rowsExported := result.RowsExported
	if rowsExported < 0 {
		rowsExported = 0
	}
	bytesWritten := result.BytesWritten
	if bytesWritten < 0 {
		bytesWritten = 0
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs
		 SET status = $2, rows_exported = $3, bytes_written = $4, file_path = $5, file_mime_type = $6, file_byte_size = $7, updated_at = now()
		 WHERE id = $1 AND status = $8`,
		id,
		string(domain.ExportJobStatusCompleted),
		rowsExported,
		bytesWritten,
		filePath,
		fileMime,
		fileSize,
		string(domain.ExportJobStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to mark export job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func (r *exportJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	if r.pool == nil {
		return fmt.Errorf("export job repository not initialized")
	}
	msg := pgtype.Text{}
	if strings.TrimSpace(message) != "" {
		msg = pgtype.Text{String: message, Valid: true}
	}
	// No affected-rows check: failing an already terminal job is a no-op.
	_, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs SET status = $2, error_message = $3, updated_at = now()
		 WHERE id = $1 AND status = ANY($4)`,
		id,
		string(domain.ExportJobStatusFailed),
		msg,
		[]string{string(domain.ExportJobStatusPending), string(domain.ExportJobStatusRunning)},
	)
	if err != nil {
		return fmt.Errorf("failed to mark export job failed: %w", err)
	}
	return nil
}

func (r *exportJobRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	if r.pool == nil {
		return fmt.Errorf("export job repository not initialized")
	}
	msg := pgtype.Text{}
	if strings.TrimSpace(reason) != "" {
		msg = pgtype.Text{String: reason, Valid: true}
	}
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs SET status = $2, error_message = $3, updated_at = now()
		 WHERE id = $1 AND status = ANY($4)`,
		id,
		string(domain.ExportJobStatusCancelled),
		msg,
		[]string{string(domain.ExportJobStatusPending), string(domain.ExportJobStatusRunning)},
	)
	if err != nil {
		return fmt.Errorf("failed to mark export job cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func (r *exportJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, rowsExported int, bytesWritten int64, rowsRequested *int) error {
	if r.pool == nil {
		return fmt.Errorf("export job repository not initialized")
	}
	if rowsExported < 0 {
		rowsExported = 0
	}
	if bytesWritten < 0 {
		bytesWritten = 0
	}
	requested := pgtype.Int4{}
	if rowsRequested != nil {
		value := *rowsRequested
		if value < rowsExported {
			value = rowsExported
		}
		requested = pgtype.Int4{Int32: int32(value), Valid: true}
	}

	_, err := r.pool.Exec(
		ctx,
		`UPDATE export_jobs
		 SET rows_exported = $2, bytes_written = $3, rows_requested = COALESCE($4, rows_requested), updated_at = now()
		 WHERE id = $1`,
		id,
		rowsExported,
		bytesWritten,
		requested,
	)
	if err != nil {
		return fmt.Errorf("failed to update export progress: %w", err)
	}
	return nil
}

func scanExportJob(row pgx.Row) (domain.ExportJob, error) {
	var (
		job        domain.ExportJob
		recordType string
		status     string
		filePath   pgtype.Text
		fileMime   pgtype.Text
		fileSize   pgtype.Int8
		errMessage pgtype.Text
	)
	if err := row.Scan(
		&job.ID,
		&recordType,
		&status,
		&job.RowsRequested,
		&job.RowsExported,
		&job.BytesWritten,
		&filePath,
		&fileMime,
		&fileSize,
		&errMessage,
		&job.RequestedBy,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return domain.ExportJob{}, err
	}

	job.RecordType = domain.RecordType(recordType)
	job.Status = domain.ExportJobStatus(status)
	if filePath.Valid {
		value := filePath.String
		job.FilePath = &value
	}
	if fileMime.Valid {
		value := fileMime.String
		job.FileMimeType = &value
	}
	if fileSize.Valid {
		value := fileSize.Int64
		job.FileByteSize = &value
	}
	if errMessage.Valid {
		value := errMessage.String
		job.ErrorMessage = &value
	}
	return job, nil
}
