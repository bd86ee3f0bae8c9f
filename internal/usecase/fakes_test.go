package usecase

import (
	"context"
	"sync"
	"time"

	"ccfolio/internal/entity"
	"ccfolio/internal/repository"

	"github.com/google/uuid"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]entity.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]entity.User)}
}

func (r *fakeUserRepo) Get(_ context.Context, id string) (entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return entity.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return entity.User{}, repository.ErrUserNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return entity.User{}, repository.ErrUserNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user entity.User) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Id = uuid.NewString()
	r.users[user.Id] = user
	return user.Id, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Id]; !ok {
		return repository.ErrUserNotFound
	}
	r.users[user.Id] = user
	return nil
}

func (r *fakeUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r *fakeUserRepo) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

type fakeRefreshTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]entity.RefreshToken
}

func newFakeRefreshTokenRepo() *fakeRefreshTokenRepo {
	return &fakeRefreshTokenRepo{tokens: make(map[string]entity.RefreshToken)}
}

func (r *fakeRefreshTokenRepo) Create(_ context.Context, t entity.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Id = uuid.NewString()
	t.CreatedAt = time.Now()
	r.tokens[t.Token] = t
	return nil
}

func (r *fakeRefreshTokenRepo) GetByToken(_ context.Context, token string) (entity.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return entity.RefreshToken{}, repository.ErrNotFound
	}
	return t, nil
}

func (r *fakeRefreshTokenRepo) Revoke(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return repository.ErrNotFound
	}
	t.IsRevoked = true
	r.tokens[token] = t
	return nil
}

func (r *fakeRefreshTokenRepo) RevokeAllByUserId(_ context.Context, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.tokens {
		if t.UserId == userId {
			t.IsRevoked = true
			r.tokens[k] = t
		}
	}
	return nil
}

func (r *fakeRefreshTokenRepo) DeleteExpired(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.tokens {
		if t.ExpiresAt.Before(time.Now()) {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

func (r *fakeRefreshTokenRepo) expire(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tokens[token]
	t.ExpiresAt = time.Now().Add(-time.Minute)
	r.tokens[token] = t
}

type fakeAPIKeyRepo struct {
	mu   sync.Mutex
	keys map[string]entity.APIKey
}

func newFakeAPIKeyRepo() *fakeAPIKeyRepo {
	return &fakeAPIKeyRepo{keys: make(map[string]entity.APIKey)}
}

func (r *fakeAPIKeyRepo) Create(_ context.Context, k entity.APIKey) (entity.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k.Id = uuid.NewString()
	k.CreatedAt = time.Now()
	r.keys[k.Id] = k
	return k, nil
}

func (r *fakeAPIKeyRepo) GetByHash(_ context.Context, hash string) (entity.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys {
		if k.Hash == hash {
			return k, nil
		}
	}
	return entity.APIKey{}, repository.ErrNotFound
}

func (r *fakeAPIKeyRepo) ListByOwner(_ context.Context, ownerId string) ([]entity.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.APIKey
	for _, k := range r.keys {
		if k.OwnerId == ownerId {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *fakeAPIKeyRepo) Revoke(_ context.Context, id, ownerId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok || k.OwnerId != ownerId {
		return repository.ErrNotFound
	}
	k.Status = entity.APIKeyRevoked
	r.keys[id] = k
	return nil
}
