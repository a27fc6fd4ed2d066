package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/reconcile"
	"github.com/vetfieldhq/vetfield/internal/repository"
)

// Service drives one import batch through decode, alias resolution,
// client reconciliation, mapping and persistence. Rows are processed
// strictly in order, one at a time: reconciliation is read-then-write
// against the registry, and sequential processing keeps two rows of the
// same batch from racing to create the same client. Batches from
// concurrent requests are only protected by the store's own atomicity.
type Service struct {
	tables  Tables
	builder *RecordBuilder
	clients *reconcile.Service
	visits  repository.VisitRepository
	logs    repository.ImportLogRepository

	defaultSource string
	now           func() time.Time
}

// ServiceOption customizes an import service.
type ServiceOption func(*Service)

// WithDefaultSource sets the source tag used when a request carries none.
func WithDefaultSource(source string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(source) != "" {
			s.defaultSource = strings.TrimSpace(source)
		}
	}
}

// WithClock fixes the service clock; batch identifiers derive from it.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the import pipeline.
func NewService(
	tables Tables,
	builder *RecordBuilder,
	clients *reconcile.Service,
	visits repository.VisitRepository,
	logs repository.ImportLogRepository,
	opts ...ServiceOption,
) *Service {
	service := &Service{
		tables:        tables,
		builder:       builder,
		clients:       clients,
		visits:        visits,
		logs:          logs,
		defaultSource: "upload",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Request describes one import invocation. Exactly one of Payload (file
// upload, decoded by FileName extension) or Rows (pre-parsed webhook
// entries) supplies the data; Rows wins when both are set.
type Request struct {
	RecordType domain.RecordType
	FileName   string
	Payload    []byte
	Rows       []map[string]any
	Source     string
	Actor      uuid.UUID
}

// Import runs one batch to completion. A decode or record-type failure is
// batch-fatal and returns an error with no rows processed; everything
// after that point is row-local, captured in the result, and never
// escalates. The returned result always satisfies
// SuccessCount+ErrorCount == TotalRows.
func (s *Service) Import(ctx context.Context, req Request) (domain.ImportBatchResult, error) {
	table, ok := s.tables[req.RecordType]
	if !ok {
		return domain.ImportBatchResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownRecordType, req.RecordType)
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = s.defaultSource
	}

	var rows []RawRow
	if req.Rows != nil {
		rows = RowsFromJSON(req.Rows)
	} else {
		decoded, err := Decode(req.FileName, req.Payload)
		if err != nil {
			return domain.ImportBatchResult{}, err
		}
		rows = decoded
	}

	result := domain.ImportBatchResult{
		BatchID:          BatchID(source, s.now(), req.RecordType),
		RecordType:       req.RecordType,
		Source:           source,
		TotalRows:        len(rows),
		Errors:           []domain.ImportError{},
		CreatedRecordIDs: []uuid.UUID{},
	}

	for _, row := range rows {
		id, rowErr := s.processRow(ctx, table, row, req.Actor)
		if rowErr != nil {
			result.Errors = append(result.Errors, *rowErr)
			result.ErrorCount++
			continue
		}
		result.CreatedRecordIDs = append(result.CreatedRecordIDs, id)
		result.SuccessCount++
	}
	result.Success = result.ErrorCount == 0

	s.recordRun(ctx, req, source, result)
	log.Printf("[import] batch %s finished: %d total, %d ok, %d failed",
		result.BatchID, result.TotalRows, result.SuccessCount, result.ErrorCount)
	return result, nil
}

// processRow runs the full chain for one row. Any failure, including a
// panic, is converted into a single ImportError so the batch continues
// with the next row. Rows already committed stay committed; batches are
// not transactional.
func (s *Service) processRow(ctx context.Context, table AliasTable, row RawRow, actor uuid.UUID) (id uuid.UUID, rowErr *domain.ImportError) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[import] panic on row %d: %v", row.Index, rec)
			rowErr = &domain.ImportError{Row: row.Index, Field: "row", Message: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	fields := table.Resolve(row)

	client, _, err := s.clients.FindOrCreate(ctx, s.builder.ClientFields(fields), table.Type.ServiceTag(), actor)
	if err != nil {
		return uuid.Nil, &domain.ImportError{Row: row.Index, Field: "client", Message: err.Error()}
	}

	record, err := s.builder.Build(table, fields, client.ID, actor)
	if err != nil {
		return uuid.Nil, &domain.ImportError{Row: row.Index, Field: "record", Message: err.Error()}
	}

	// Duplicate serials are rejected by a pre-check rather than a storage
	// constraint, so both storage backends behave identically.
	serial := record.Base().Serial
	count, err := s.visits.CountBySerial(ctx, table.Type, serial)
	if err != nil {
		return uuid.Nil, &domain.ImportError{Row: row.Index, Field: "persist", Message: err.Error()}
	}
	if count > 0 {
		return uuid.Nil, &domain.ImportError{
			Row:     row.Index,
			Field:   table.SerialField,
			Message: fmt.Sprintf("duplicate serial %q", serial),
		}
	}

	if err := s.visits.Insert(ctx, record); err != nil {
		return uuid.Nil, &domain.ImportError{Row: row.Index, Field: "persist", Message: err.Error()}
	}
	return record.Base().ID, nil
}

// Visit returns one persisted visit record by its identifier.
func (s *Service) Visit(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	if id == uuid.Nil {
		return domain.Visit{}, errors.New("record ID is required")
	}
	return s.visits.GetByID(ctx, id)
}

// recordRun persists the batch summary for audit. Best effort: a logging
// failure never fails the batch.
func (s *Service) recordRun(ctx context.Context, req Request, source string, result domain.ImportBatchResult) {
	if s.logs == nil {
		return
	}
	run := domain.ImportRun{
		ID:          uuid.New(),
		BatchID:     result.BatchID,
		RecordType:  result.RecordType,
		Source:      source,
		FileName:    req.FileName,
		TotalRows:   result.TotalRows,
		SuccessRows: result.SuccessCount,
		ErrorRows:   result.ErrorCount,
		Errors:      result.Errors,
		CreatedBy:   req.Actor,
		CreatedAt:   s.now(),
	}
	if err := s.logs.Record(ctx, run); err != nil {
		log.Printf("[import] failed to record batch %s summary: %v", result.BatchID, err)
	}
}

// BatchID derives the identifier reported for one batch:
// <source>_<unixSeconds>_<tableType-lowercase>. It is a derived string,
// not a stored key.
func BatchID(source string, at time.Time, recordType domain.RecordType) string {
	return fmt.Sprintf("%s_%d_%s", source, at.Unix(), strings.ToLower(recordType.TableType()))
}
