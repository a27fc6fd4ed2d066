package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type importRunDoc struct {
	ID          string               `bson:"_id"`
	BatchID     string               `bson:"batch_id"`
	RecordType  string               `bson:"record_type"`
	Source      string               `bson:"source"`
	FileName    string               `bson:"file_name"`
	TotalRows   int                  `bson:"total_rows"`
	SuccessRows int                  `bson:"success_rows"`
	ErrorRows   int                  `bson:"error_rows"`
	Errors      []domain.ImportError `bson:"errors"`
	CreatedBy   string               `bson:"created_by"`
	CreatedAt   time.Time            `bson:"created_at"`
}

type importLogRepository struct {
	coll *mongo.Collection
}

// NewImportLogRepository wires the Mongo store for import batch summaries
// over the "import_logs" collection.
func NewImportLogRepository(db *mongo.Database) repository.ImportLogRepository {
	return &importLogRepository{coll: db.Collection("import_logs")}
}

func (r *importLogRepository) Record(ctx context.Context, run domain.ImportRun) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	errs := run.Errors
	if errs == nil {
		errs = []domain.ImportError{}
	}
	doc := importRunDoc{
		ID:          run.ID.String(),
		BatchID:     run.BatchID,
		RecordType:  string(run.RecordType),
		Source:      run.Source,
		FileName:    run.FileName,
		TotalRows:   run.TotalRows,
		SuccessRows: run.SuccessRows,
		ErrorRows:   run.ErrorRows,
		Errors:      errs,
		CreatedBy:   run.CreatedBy.String(),
		CreatedAt:   run.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to record import run: %w", err)
	}
	return nil
}

func (r *importLogRepository) List(ctx context.Context, recordType *domain.RecordType, limit, offset int) ([]domain.ImportRun, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	filter := bson.D{}
	if recordType != nil {
		filter = bson.D{{Key: "record_type", Value: string(*recordType)}}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	defer cursor.Close(ctx)

	runs := []domain.ImportRun{}
	for cursor.Next(ctx) {
		var doc importRunDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode import run: %w", err)
		}
		run, convErr := fromImportRunDoc(doc)
		if convErr != nil {
			return nil, convErr
		}
		runs = append(runs, run)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import runs: %w", err)
	}
	return runs, nil
}

func fromImportRunDoc(doc importRunDoc) (domain.ImportRun, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("invalid import run identifier %q: %w", doc.ID, err)
	}
	createdBy, err := uuid.Parse(doc.CreatedBy)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("invalid import run creator %q: %w", doc.CreatedBy, err)
	}
	errs := doc.Errors
	if errs == nil {
		errs = []domain.ImportError{}
	}
	return domain.ImportRun{
		ID:          id,
		BatchID:     doc.BatchID,
		RecordType:  domain.RecordType(doc.RecordType),
		Source:      doc.Source,
		FileName:    doc.FileName,
		TotalRows:   doc.TotalRows,
		SuccessRows: doc.SuccessRows,
		ErrorRows:   doc.ErrorRows,
		Errors:      errs,
		CreatedBy:   createdBy,
		CreatedAt:   doc.CreatedAt,
	}, nil
}
