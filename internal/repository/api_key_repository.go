package repository

import (
	"context"
	"errors"
	"time"

	"ccfolio/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const apiKeysCollection = "api_keys"

type APIKeyRepository interface {
	Create(ctx context.Context, key entity.APIKey) (entity.APIKey, error)
	GetByHash(ctx context.Context, hash string) (entity.APIKey, error)
	ListByOwner(ctx context.Context, ownerId string) ([]entity.APIKey, error)
	// Revoke marks the owner's key revoked; ErrNotFound if no such key is owned.
	Revoke(ctx context.Context, id, ownerId string) error
}

type apiKeyRepository struct {
	db *mongo.Database
}

func NewAPIKeyRepository(db *mongo.Database) APIKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) collection() *mongo.Collection {
	return r.db.Collection(apiKeysCollection)
}

func (r *apiKeyRepository) Create(ctx context.Context, key entity.APIKey) (entity.APIKey, error) {
	key.Id = uuid.New().String()
	key.CreatedAt = time.Now()
	key.UpdatedAt = key.CreatedAt
	if key.Status == "" {
		key.Status = entity.APIKeyActive
	}

	if _, err := r.collection().InsertOne(ctx, key); err != nil {
		return entity.APIKey{}, err
	}
	return key, nil
}

func (r *apiKeyRepository) GetByHash(ctx context.Context, hash string) (entity.APIKey, error) {
	var key entity.APIKey
	err := r.collection().FindOne(ctx, bson.M{"hash": hash}).Decode(&key)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.APIKey{}, ErrNotFound
		}
		return entity.APIKey{}, err
	}
	return key, nil
}

func (r *apiKeyRepository) ListByOwner(ctx context.Context, ownerId string) ([]entity.APIKey, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection().Find(ctx, bson.M{"ownerId": ownerId}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	keys := make([]entity.APIKey, 0)
	if err := cursor.All(ctx, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *apiKeyRepository) Revoke(ctx context.Context, id, ownerId string) error {
	filter := bson.M{"_id": id, "ownerId": ownerId}
	update := bson.M{
		"$set": bson.M{
			"status":    entity.APIKeyRevoked,
			"updatedAt": time.Now(),
		},
	}
	res, err := r.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
