package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vetfieldhq/vetfield/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type importLogRepository struct {
	pool *pgxpool.Pool
}

// NewImportLogRepository wires the Postgres store for import batch
// summaries.
func NewImportLogRepository(pool *pgxpool.Pool) ImportLogRepository {
	return &importLogRepository{pool: pool}
}

func (r *importLogRepository) Record(ctx context.Context, run domain.ImportRun) error {
	if r.pool == nil {
		return fmt.Errorf("import log repository not initialized")
	}

	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal import errors: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO import_logs (id, batch_id, record_type, source, file_name, total_rows, success_rows, error_rows, errors, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID,
		run.BatchID,
		string(run.RecordType),
		run.Source,
		run.FileName,
		run.TotalRows,
		run.SuccessRows,
		run.ErrorRows,
		errorsJSON,
		run.CreatedBy,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record import run: %w", err)
	}
	return nil
}

func (r *importLogRepository) List(ctx context.Context, recordType *domain.RecordType, limit, offset int) ([]domain.ImportRun, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("import log repository not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, batch_id, record_type, source, file_name, total_rows, success_rows, error_rows, errors, created_by, created_at
	          FROM import_logs`
	args := []any{}
	if recordType != nil {
		query += ` WHERE record_type = $1`
		args = append(args, string(*recordType))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.ImportRun{}
	for rows.Next() {
		var (
			run        domain.ImportRun
			recordType string
			errorsJSON []byte
		)
		if scanErr := rows.Scan(
			&run.ID,
			&run.BatchID,
			&recordType,
			&run.Source,
			&run.FileName,
			&run.TotalRows,
			&run.SuccessRows,
			&run.ErrorRows,
			&errorsJSON,
			&run.CreatedBy,
			&run.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import run: %w", scanErr)
		}
		run.RecordType = domain.RecordType(recordType)
		run.Errors = []domain.ImportError{}
		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
				return nil, fmt.Errorf("failed to unmarshal import errors: %w", err)
			}
		}
		runs = append(runs, run)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import runs: %w", rowsErr)
	}
	return runs, nil
}
