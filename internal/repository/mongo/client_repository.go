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
)

type clientDoc struct {
	ID                string     `bson:"_id"`
	Name              string     `bson:"name"`
	NationalID        string     `bson:"national_id"`
	Phone             string     `bson:"phone"`
	Village           string     `bson:"village"`
	DetailedAddress   string     `bson:"detailed_address"`
	BirthDate         *time.Time `bson:"birth_date,omitempty"`
	Status            string     `bson:"status"`
	AvailableServices []string   `bson:"available_services"`
	CreatedBy         string     `bson:"created_by"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

type clientRepository struct {
	coll *mongo.Collection
}

// NewClientRepository wires the Mongo client registry over the "clients"
// collection.
func NewClientRepository(db *mongo.Database) repository.ClientRepository {
	return &clientRepository{coll: db.Collection("clients")}
}

func (r *clientRepository) FindOneByAny(ctx context.Context, lookup repository.ClientLookup) (domain.Client, error) {
	conditions := bson.A{}
	addCondition := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		conditions = append(conditions, bson.D{{Key: field, Value: strings.TrimSpace(value)}})
	}
	addCondition("name", lookup.Name)
	addCondition("national_id", lookup.NationalID)
	addCondition("phone", lookup.Phone)
	addCondition("village", lookup.Village)
	if len(conditions) == 0 {
		return domain.Client{}, repository.ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "$or", Value: conditions}})
}

func (r *clientRepository) FindOneByNationalID(ctx context.Context, nationalID string) (domain.Client, error) {
	return r.findOne(ctx, bson.D{{Key: "national_id", Value: strings.TrimSpace(nationalID)}})
}

func (r *clientRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
}

func (r *clientRepository) Insert(ctx context.Context, client domain.Client) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, toClientDoc(client)); err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func (r *clientRepository) Update(ctx context.Context, client domain.Client) error {
	ctx, cancel := opContext(ctx)
	defer cancel()

	result, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: client.ID.String()}}, toClientDoc(client))
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *clientRepository) CountByNationalID(ctx context.Context, nationalID string) (int64, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	count, err := r.coll.CountDocuments(ctx, bson.D{{Key: "national_id", Value: strings.TrimSpace(nationalID)}})
	if err != nil {
		return 0, fmt.Errorf("failed to count clients: %w", err)
	}
	return count, nil
}

func (r *clientRepository) findOne(ctx context.Context, filter bson.D) (domain.Client, error) {
	ctx, cancel := opContext(ctx)
	defer cancel()

	var doc clientDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Client{}, repository.ErrNotFound
		}
		return domain.Client{}, fmt.Errorf("failed to load client: %w", err)
	}
	return fromClientDoc(doc)
}

func toClientDoc(client domain.Client) clientDoc {
	services := client.AvailableServices
	if services == nil {
		services = []string{}
	}
	return clientDoc{
		ID:                client.ID.String(),
		Name:              client.Name,
		NationalID:        client.NationalID,
		Phone:             client.Phone,
		Village:           client.Village,
		DetailedAddress:   client.DetailedAddress,
		BirthDate:         client.BirthDate,
		Status:            client.Status,
		AvailableServices: services,
		CreatedBy:         client.CreatedBy.String(),
		CreatedAt:         client.CreatedAt,
		UpdatedAt:         client.UpdatedAt,
	}
}

func fromClientDoc(doc clientDoc) (domain.Client, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return domain.Client{}, fmt.Errorf("invalid client identifier %q: %w", doc.ID, err)
	}
	createdBy, err := uuid.Parse(doc.CreatedBy)
	if err != nil {
		return domain.Client{}, fmt.Errorf("invalid client creator %q: %w", doc.CreatedBy, err)
	}
	services := doc.AvailableServices
	if services == nil {
		services = []string{}
	}
	return domain.Client{
		ID:                id,
		Name:              doc.Name,
		NationalID:        doc.NationalID,
		Phone:             doc.Phone,
		Village:           doc.Village,
		DetailedAddress:   doc.DetailedAddress,
		BirthDate:         doc.BirthDate,
		Status:            doc.Status,
		AvailableServices: services,
		CreatedBy:         createdBy,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}, nil
}
