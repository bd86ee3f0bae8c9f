package repository

import (
	"context"
	"errors"
	"time"

	"ccfolio/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const refreshTokensCollection = "refresh_tokens"

type RefreshTokenRepository interface {
	Create(ctx context.Context, refreshToken entity.RefreshToken) error
	GetByToken(ctx context.Context, token string) (entity.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllByUserId(ctx context.Context, userId string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type refreshTokenRepository struct {
	db *mongo.Database
}

func NewRefreshTokenRepository(db *mongo.Database) RefreshTokenRepository {
	return &refreshTokenRepository{
		db: db,
	}
}

func (r *refreshTokenRepository) collection() *mongo.Collection {
	return r.db.Collection(refreshTokensCollection)
}

func (r *refreshTokenRepository) Create(ctx context.Context, refreshToken entity.RefreshToken) error {
	refreshToken.Id = uuid.New().String()
	refreshToken.CreatedAt = time.Now()
	refreshToken.IsRevoked = false

	_, err := r.collection().InsertOne(ctx, refreshToken)
	return err
}

func (r *refreshTokenRepository) GetByToken(ctx context.Context, token string) (entity.RefreshToken, error) {
	var refreshToken entity.RefreshToken
	err := r.collection().FindOne(ctx, bson.M{"token": token}).Decode(&refreshToken)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.RefreshToken{}, ErrNotFound
		}
		return entity.RefreshToken{}, err
	}
	return refreshToken, nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, token string) error {
	update := bson.M{
		"$set": bson.M{
			"isRevoked": true,
			"revokedAt": time.Now(),
		},
	}
	res, err := r.collection().UpdateOne(ctx, bson.M{"token": token}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *refreshTokenRepository) RevokeAllByUserId(ctx context.Context, userId string) error {
	filter := bson.M{
		"userId":    userId,
		"isRevoked": false,
	}
	update := bson.M{
		"$set": bson.M{
			"isRevoked": true,
			"revokedAt": time.Now(),
		},
	}
	_, err := r.collection().UpdateMany(ctx, filter, update)
	return err
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.collection().DeleteMany(ctx, bson.M{
		"expiresAt": bson.M{"$lt": time.Now()},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
