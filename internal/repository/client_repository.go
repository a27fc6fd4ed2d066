package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vetfieldhq/vetfield/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type clientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository wires the Postgres client registry.
func NewClientRepository(pool *pgxpool.Pool) ClientRepository {
	return &clientRepository{pool: pool}
}

const clientColumns = `id, name, national_id, phone, village, detailed_address, birth_date, status, available_services, created_by, created_at, updated_at`

func (r *clientRepository) FindOneByAny(ctx context.Context, lookup ClientLookup) (domain.Client, error) {
	if r.pool == nil {
		return domain.Client{}, fmt.Errorf("client repository not initialized")
	}

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)
	addClause := func(column, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		args = append(args, strings.TrimSpace(value))
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addClause("name", lookup.Name)
	addClause("national_id", lookup.NationalID)
	addClause("phone", lookup.Phone)
	addClause("village", lookup.Village)
	if len(clauses) == 0 {
		return domain.Client{}, ErrNotFound
	}

	query := fmt.Sprintf(
		`SELECT %s FROM clients WHERE %s ORDER BY created_at ASC LIMIT 1`,
		clientColumns, strings.Join(clauses, " OR "),
	)
	return r.queryOne(ctx, query, args...)
}

func (r *clientRepository) FindOneByNationalID(ctx context.Context, nationalID string) (domain.Client, error) {
	if r.pool == nil {
		return domain.Client{}, fmt.Errorf("client repository not initialized")
	}
	query := fmt.Sprintf(
		`SELECT %s FROM clients WHERE national_id = $1 ORDER BY created_at ASC LIMIT 1`,
		clientColumns,
	)
	return r.queryOne(ctx, query, strings.TrimSpace(nationalID))
}

func (r *clientRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	if r.pool == nil {
		return domain.Client{}, fmt.Errorf("client repository not initialized")
	}
	query := fmt.Sprintf(`SELECT %s FROM clients WHERE id = $1`, clientColumns)
	return r.queryOne(ctx, query, id)
}

func (r *clientRepository) Insert(ctx context.Context, client domain.Client) error {
	if r.pool == nil {
		return fmt.Errorf("client repository not initialized")
	}

	services, err := json.Marshal(client.AvailableServices)
	if err != nil {
		return fmt.Errorf("failed to marshal client services: %w", err)
	}

	_, err = r.pool.Exec(
		ctx,
		`INSERT INTO clients (id, name, national_id, phone, village, detailed_address, birth_date, status, available_services, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		client.ID,
		client.Name,
		client.NationalID,
		client.Phone,
		client.Village,
		client.DetailedAddress,
		toPGDate(client.BirthDate),
		client.Status,
		services,
		client.CreatedBy,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func (r *clientRepository) Update(ctx context.Context, client domain.Client) error {
	if r.pool == nil {
		return fmt.Errorf("client repository not initialized")
	}

	services, err := json.Marshal(client.AvailableServices)
	if err != nil {
		return fmt.Errorf("failed to marshal client services: %w", err)
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE clients
		 SET name = $2, national_id = $3, phone = $4, village = $5, detailed_address = $6,
		     birth_date = $7, status = $8, available_services = $9, updated_at = $10
		 WHERE id = $1`,
		client.ID,
		client.Name,
		client.NationalID,
		client.Phone,
		client.Village,
		client.DetailedAddress,
		toPGDate(client.BirthDate),
		client.Status,
		services,
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *clientRepository) CountByNationalID(ctx context.Context, nationalID string) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("client repository not initialized")
	}
	var count int64
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM clients WHERE national_id = $1`,
		strings.TrimSpace(nationalID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count clients: %w", err)
	}
	return count, nil
}

func (r *clientRepository) queryOne(ctx context.Context, query string, args ...any) (domain.Client, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Client{}, ErrNotFound
		}
		return domain.Client{}, fmt.Errorf("failed to load client: %w", err)
	}
	return client, nil
}

func scanClient(row pgx.Row) (domain.Client, error) {
	var (
		client    domain.Client
		birthDate pgtype.Date
		services  []byte
	)
	if err := row.Scan(
		&client.ID,
		&client.Name,
		&client.NationalID,
		&client.Phone,
		&client.Village,
		&client.DetailedAddress,
		&birthDate,
		&client.Status,
		&services,
		&client.CreatedBy,
		&client.CreatedAt,
		&client.UpdatedAt,
	); err != nil {
		return domain.Client{}, err
	}

	if birthDate.Valid {
		value := birthDate.Time
		client.BirthDate = &value
	}
	client.AvailableServices = []string{}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &client.AvailableServices); err != nil {
			return domain.Client{}, fmt.Errorf("failed to unmarshal client services: %w", err)
		}
	}
	return client, nil
}

func toPGDate(value *time.Time) pgtype.Date {
	if value == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *value, Valid: true}
}
