package usecase

import (
	"context"
	"errors"
	"time"

	"ccfolio/internal/entity"
	"ccfolio/internal/repository"
	"ccfolio/pkg/apikey"
)

var (
	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrInvalidTTL     = errors.New("ttl must not be negative")
)

type APIKeyUsecase interface {
	Create(ctx context.Context, ownerId string, req entity.CreateAPIKeyRequest) (entity.CreateAPIKeyResponse, error)
	List(ctx context.Context, ownerId string) ([]entity.APIKey, error)
	Revoke(ctx context.Context, ownerId, keyId string) error
	// Verify reports whether key belongs to an active, unexpired record.
	Verify(ctx context.Context, key string) (bool, error)
}

type apiKeyUsecase struct {
	repo   repository.APIKeyRepository
	hasher *apikey.Hasher
	now    func() time.Time
}

func NewAPIKeyUsecase(repo repository.APIKeyRepository, hasher *apikey.Hasher) APIKeyUsecase {
	return &apiKeyUsecase{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
	}
}

func (u *apiKeyUsecase) Create(ctx context.Context, ownerId string, req entity.CreateAPIKeyRequest) (entity.CreateAPIKeyResponse, error) {
	if req.TTLSeconds < 0 {
		return entity.CreateAPIKeyResponse{}, ErrInvalidTTL
	}

	key, err := apikey.Generate()
	if err != nil {
		return entity.CreateAPIKeyResponse{}, err
	}

	record := entity.APIKey{
		Hash:        u.hasher.Hash(key),
		Prefix:      apikey.Prefix(key),
		OwnerId:     ownerId,
		Description: req.Description,
		Status:      entity.APIKeyActive,
	}
	if req.TTLSeconds > 0 {
		expires := u.now().Add(time.Duration(req.TTLSeconds) * time.Second)
		record.ExpiresAt = &expires
	}

	record, err = u.repo.Create(ctx, record)
	if err != nil {
		return entity.CreateAPIKeyResponse{}, err
	}
	return entity.CreateAPIKeyResponse{Key: key, APIKey: record}, nil
}

func (u *apiKeyUsecase) List(ctx context.Context, ownerId string) ([]entity.APIKey, error) {
	return u.repo.ListByOwner(ctx, ownerId)
}

func (u *apiKeyUsecase) Revoke(ctx context.Context, ownerId, keyId string) error {
	if keyId == "" {
		return ErrMissingFields
	}
	err := u.repo.Revoke(ctx, keyId, ownerId)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAPIKeyNotFound
	}
	return err
}

func (u *apiKeyUsecase) Verify(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	record, err := u.repo.GetByHash(ctx, u.hasher.Hash(key))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return record.Usable(u.now()), nil
}
