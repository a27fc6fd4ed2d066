package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vetfieldhq/vetfield/internal/domain"
	"github.com/vetfieldhq/vetfield/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type visitDoc struct {
	ID               string           `bson:"_id"`
	RecordType       string           `bson:"record_type"`
	Serial           string           `bson:"serial"`
	VisitDate        time.Time        `bson:"visit_date"`
	ClientID         string           `bson:"client_id"`
	Latitude         float64          `bson:"latitude"`
	Longitude        float64          `bson:"longitude"`
	Supervisor       string           `bson:"supervisor"`
	VehicleNo        string           `bson:"vehicle_no"`
	Remarks          string           `bson:"remarks"`
	RequestDate      time.Time        `bson:"request_date"`
	RequestSituation string           `bson:"request_situation"`
	Herd             domain.Herd      `bson:"herd"`
	Details          map[string]any   `bson:"details"`
	CreatedBy        string           `bson:"created_by"`
	CreatedAt        time.Time        `bson:"created_at"`
}

type visitRepository struct {
	coll *mongo.Collection
}

// NewVisitRepository wires the Mongo store for canonical visit records
// over the "visits" collection.
func NewVisitRepository(db *mongo.Database) repository.VisitRepository {
	return &visitRepository{coll: db.Collection("visits")}
}

func (r *visitRepository) Insert(ctx context.Context, record domain.CanonicalRecord) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	base := record.Base()
	doc := visitDoc{
		ID:               base.ID.String(),
		RecordType:       string(record.RecordType()),
		Serial:           base.Serial,
		VisitDate:        base.VisitDate,
		ClientID:         base.ClientID.String(),
		Latitude:         base.Location.Latitude,
		Longitude:        base.Location.Longitude,
		Supervisor:       base.Supervisor,
		VehicleNo:        base.VehicleNo,
		Remarks:          base.Remarks,
		RequestDate:      base.Request.Date,
		RequestSituation: base.Request.Situation,
		Herd:             base.Herd,
		Details:          record.Details(),
		CreatedBy:        base.CreatedBy.String(),
		CreatedAt:        base.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert visit: %w", err)
	}
	return nil
}

func (r *visitRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var doc visitDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id.String()}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Visit{}, repository.ErrNotFound
		}
		return domain.Visit{}, fmt.Errorf("failed to load visit: %w", err)
	}
	return fromVisitDoc(doc)
}

func (r *visitRepository) CountBySerial(ctx context.Context, recordType domain.RecordType, serial string) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	filter := bson.D{
		{Key: "record_type", Value: string(recordType)},
		{Key: "serial", Value: strings.TrimSpace(serial)},
	}
	count, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return count, nil
}

func (r *visitRepository) ListByType(ctx context.Context, recordType domain.RecordType, limit, offset int) ([]domain.Visit, int, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	filter := bson.D{{Key: "record_type", Value: string(recordType)}}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count visits: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "visit_date", Value: -1}, {Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list visits: %w", err)
	}
	defer cursor.Close(ctx)

	visits := []domain.Visit{}
	for cursor.Next(ctx) {
		var doc visitDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("failed to decode visit: %w", err)
		}
		visit, convErr := fromVisitDoc(doc)
		if convErr != nil {
			return nil, 0, convErr
		}
		visits = append(visits, visit)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate visits: %w", err)
	}
	return visits, int(total), nil
}

func fromVisitDoc(doc visitDoc) (domain.Visit, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("invalid visit identifier %q: %w", doc.ID, err)
	}
	clientID, err := uuid.Parse(doc.ClientID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("invalid visit client %q: %w", doc.ClientID, err)
	}
	createdBy, err := uuid.Parse(doc.CreatedBy)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("invalid visit creator %q: %w", doc.CreatedBy, err)
	}
	details := doc.Details
	if details == nil {
		details = map[string]any{}
	}
	return domain.Visit{
		VisitBase: domain.VisitBase{
			ID:         id,
			Type:       domain.RecordType(doc.RecordType),
			Serial:     doc.Serial,
			VisitDate:  doc.VisitDate,
			ClientID:   clientID,
			Location:   domain.GeoPoint{Latitude: doc.Latitude, Longitude: doc.Longitude},
			Supervisor: doc.Supervisor,
			VehicleNo:  doc.VehicleNo,
			Remarks:    doc.Remarks,
			Request:    domain.FollowUp{Date: doc.RequestDate, Situation: doc.RequestSituation},
			Herd:       doc.Herd,
			CreatedBy:  createdBy,
			CreatedAt:  doc.CreatedAt,
		},
		Details: details,
	}, nil
}
