package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vetfieldhq/vetfield/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type visitRepository struct {
	pool *pgxpool.Pool
}

// NewVisitRepository wires the Postgres store for canonical visit records.
// The five record variants share one table: typed common columns plus a
// JSONB document for the variant-specific fields.
func NewVisitRepository(pool *pgxpool.Pool) VisitRepository {
	return &visitRepository{pool: pool}
}

const visitColumns = `id, record_type, serial, visit_date, client_id, latitude, longitude, supervisor, vehicle_no, remarks, request_date, request_situation, herd, details, created_by, created_at`

func (r *visitRepository) Insert(ctx context.Context, record domain.CanonicalRecord) error {
	if r.pool == nil {
		return fmt.Errorf("visit repository not initialized")
	}

	base := record.Base()
	herd, err := json.Marshal(base.Herd)
	if err != nil {
		return fmt.Errorf("failed to marshal herd counts: %w", err)
	}
	details, err := json.Marshal(record.Details())
	if err != nil {
		return fmt.Errorf("failed to marshal visit details: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO visits (id, record_type, serial, visit_date, client_id, latitude, longitude, supervisor, vehicle_no, remarks, request_date, request_situation, herd, details, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		base.ID,
		string(record.RecordType()),
		base.Serial,
		base.VisitDate,
		base.ClientID,
		base.Location.Latitude,
		base.Location.Longitude,
		base.Supervisor,
		base.VehicleNo,
		base.Remarks,
		base.Request.Date,
		base.Request.Situation,
		herd,
		details,
		base.CreatedBy,
		base.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert visit: %w", err)
	}
	return nil
}

func (r *visitRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	if r.pool == nil {
		return domain.Visit{}, fmt.Errorf("visit repository not initialized")
	}
	query := fmt.Sprintf(`SELECT %s FROM visits WHERE id = $1`, visitColumns)
	visit, err := scanVisit(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Visit{}, ErrNotFound
		}
		return domain.Visit{}, fmt.Errorf("failed to load visit: %w", err)
	}
	return visit, nil
}

func (r *visitRepository) CountBySerial(ctx context.Context, recordType domain.RecordType, serial string) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("visit repository not initialized")
	}
	var count int64
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM visits WHERE record_type = $1 AND serial = $2`,
		string(recordType),
		strings.TrimSpace(serial),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return count, nil
}

func (r *visitRepository) ListByType(ctx context.Context, recordType domain.RecordType, limit, offset int) ([]domain.Visit, int, error) {
	if r.pool == nil {
		return nil, 0, fmt.Errorf("visit repository not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM visits WHERE record_type = $1`,
		string(recordType),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count visits: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM visits WHERE record_type = $1 ORDER BY visit_date DESC, created_at DESC LIMIT $2 OFFSET $3`,
		visitColumns,
	)
	rows, err := r.pool.Query(ctx, query, string(recordType), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	visits := []domain.Visit{}
	for rows.Next() {
		visit, scanErr := scanVisit(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan visit: %w", scanErr)
		}
		visits = append(visits, visit)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("failed to iterate visits: %w", rowsErr)
	}
	return visits, int(total), nil
}

func scanVisit(row pgx.Row) (domain.Visit, error) {
	var (
		visit      domain.Visit
		recordType string
		herd       []byte
		details    []byte
	)
	if err := row.Scan(
		&visit.ID,
		&recordType,
		&visit.Serial,
		&visit.VisitDate,
		&visit.ClientID,
		&visit.Location.Latitude,
		&visit.Location.Longitude,
		&visit.Supervisor,
		&visit.VehicleNo,
		&visit.Remarks,
		&visit.Request.Date,
		&visit.Request.Situation,
		&herd,
		&details,
		&visit.CreatedBy,
		&visit.CreatedAt,
	); err != nil {
		return domain.Visit{}, err
	}

	visit.Type = domain.RecordType(recordType)
	if len(herd) > 0 {
		if err := json.Unmarshal(herd, &visit.Herd); err != nil {
			return domain.Visit{}, fmt.Errorf("failed to unmarshal herd counts: %w", err)
		}
	}
	visit.Details = map[string]any{}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &visit.Details); err != nil {
			return domain.Visit{}, fmt.Errorf("failed to unmarshal visit details: %w", err)
		}
	}
	return visit, nil
}
