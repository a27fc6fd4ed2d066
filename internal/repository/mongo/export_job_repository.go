package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type exportJobDoc struct {
	ID            string    `bson:"_id"`
	RecordType    string    `bson:"record_type"`
	Status        string    `bson:"status"`
	RowsRequested int       `bson:"rows_requested"`
	RowsExported  int       `bson:"rows_exported"`
	BytesWritten  int64     `bson:"bytes_written"`
	FilePath      *string   `bson:"file_path,omitempty"`
	FileMimeType  *string   `bson:"file_mime_type,omitempty"`
	FileByteSize  *int64    `bson:"file_byte_size,omitempty"`
	ErrorMessage  *string   `bson:"error_message,omitempty"`
	RequestedBy   string    `bson:"requested_by"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type exportJobRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewExportJobRepository wires the Mongo store for export jobs over the
// "export_jobs" collection. Status transitions are guarded by the update
// filter so a cancelled job can never be revived by a slow worker.
func NewExportJobRepository(db *mongo.Database) repository.ExportJobRepository {
	return &exportJobRepository{coll: db.Collection("export_jobs"), now: time.Now}
}

func (r *exportJobRepository) Create(ctx context.Context, job domain.ExportJob) (domain.ExportJob, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	rowsRequested := job.RowsRequested
	if rowsRequested < 0 {
		rowsRequested = 0
	}
	now := r.now()
	doc := exportJobDoc{
		ID:            job.ID.String(),
		RecordType:    string(job.RecordType),
		Status:        string(domain.ExportJobStatusPending),
		RowsRequested: rowsRequested,
		RequestedBy:   job.RequestedBy.String(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return domain.ExportJob{}, fmt.Errorf("failed to insert export job: %w", err)
	}
	return r.GetByID(ctx, job.ID)
}

func (r *exportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var doc exportJobDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id.String()}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ExportJob{}, repository.ErrNotFound
		}
		return domain.ExportJob{}, fmt.Errorf("failed to load export job: %w", err)
	}
	return fromExportJobDoc(doc)
}

func (r *exportJobRepository) List(ctx context.Context, statuses []domain.ExportJobStatus, limit, offset int) ([]domain.ExportJob, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

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
	filter := bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: statusValues}}}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list export jobs: %w", err)
	}
	defer cursor.Close(ctx)

	jobs := []domain.ExportJob{}
	for cursor.Next(ctx) {
		var doc exportJobDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode export job: %w", err)
		}
		job, convErr := fromExportJobDoc(doc)
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, job)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate export jobs: %w", err)
	}
	return jobs, nil
}

func (r *exportJobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id,
		[]string{string(domain.ExportJobStatusPending)},
		bson.D{{Key: "status", Value: string(domain.ExportJobStatusRunning)}},
		true,
	)
}

func (r *exportJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, result repository.ExportResult) error {
	set := bson.D{
		{Key: "status", Value: string(domain.ExportJobStatusCompleted)},
		{Key: "rows_exported", Value: maxInt(result.RowsExported, 0)},
		{Key: "bytes_written", Value: maxInt64(result.BytesWritten, 0)},
	}
	if result.FilePath != nil && *result.FilePath != "" {
		set = append(set, bson.E{Key: "file_path", Value: *result.FilePath})
	}
	if result.FileMimeType != nil && *result.FileMimeType != "" {
		set = append(set, bson.E{Key: "file_mime_type", Value: *result.FileMimeType})
	}
	if result.FileByteSize != nil {
		set = append(set, bson.E{Key: "file_byte_size", Value: *result.FileByteSize})
	}
	return r.transition(ctx, id, []string{string(domain.ExportJobStatusRunning)}, set, true)
}

func (r *exportJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	set := bson.D{{Key: "status", Value: string(domain.ExportJobStatusFailed)}}
	if message != "" {
		set = append(set, bson.E{Key: "error_message", Value: message})
	}
	// Failing an already terminal job is a no-op, not a conflict.
	return r.transition(ctx, id,
		[]string{string(domain.ExportJobStatusPending), string(domain.ExportJobStatusRunning)},
		set,
		false,
	)
}

func (r *exportJobRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	set := bson.D{{Key: "status", Value: string(domain.ExportJobStatusCancelled)}}
	if reason != "" {
		set = append(set, bson.E{Key: "error_message", Value: reason})
	}
	return r.transition(ctx, id,
		[]string{string(domain.ExportJobStatusPending), string(domain.ExportJobStatusRunning)},
		set,
		true,
	)
}

func (r *exportJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, rowsExported int, bytesWritten int64, rowsRequested *int) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	set := bson.D{
		{Key: "rows_exported", Value: maxInt(rowsExported, 0)},
		{Key: "bytes_written", Value: maxInt64(bytesWritten, 0)},
		{Key: "updated_at", Value: r.now()},
	}
	if rowsRequested != nil {
		set = append(set, bson.E{Key: "rows_requested", Value: maxInt(*rowsRequested, rowsExported)})
	}
	_, err := r.coll.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return fmt.Errorf("failed to update export progress: %w", err)
	}
	return nil
}

// transition applies the $set when the job is currently in one of the
// allowed statuses. strictMatch turns a missed filter into a status
// conflict.
func (r *exportJobRepository) transition(ctx context.Context, id uuid.UUID, fromStatuses []string, set bson.D, strictMatch bool) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	set = append(set, bson.E{Key: "updated_at", Value: r.now()})
	filter := bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "status", Value: bson.D{{Key: "$in", Value: fromStatuses}}},
	}
	result, err := r.coll.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("failed to update export job status: %w", err)
	}
	if strictMatch && result.MatchedCount == 0 {
		return repository.ErrExportJobStatusConflict
	}
	return nil
}

func fromExportJobDoc(doc exportJobDoc) (domain.ExportJob, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("invalid export job identifier %q: %w", doc.ID, err)
	}
	requestedBy, err := uuid.Parse(doc.RequestedBy)
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("invalid export job requester %q: %w", doc.RequestedBy, err)
	}
	return domain.ExportJob{
		ID:            id,
		RecordType:    domain.RecordType(doc.RecordType),
		Status:        domain.ExportJobStatus(doc.Status),
		RowsRequested: doc.RowsRequested,
		RowsExported:  doc.RowsExported,
		BytesWritten:  doc.BytesWritten,
		FilePath:      doc.FilePath,
		FileMimeType:  doc.FileMimeType,
		FileByteSize:  doc.FileByteSize,
		ErrorMessage:  doc.ErrorMessage,
		RequestedBy:   requestedBy,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
