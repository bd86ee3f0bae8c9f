package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"ccfolio/internal/entity"
	"ccfolio/pkg/apikey"
)

func newTestAPIKeys(t *testing.T) *apiKeyUsecase {
	t.Helper()
	hasher, err := apikey.NewHasher("pepper", apikey.Params{Time: 1, Memory: 64, Threads: 1})
	if err != nil {
		t.Fatal(err)
	}
	return NewAPIKeyUsecase(newFakeAPIKeyRepo(), hasher).(*apiKeyUsecase)
}

func TestAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	keys := newTestAPIKeys(t)

	created, err := keys.Create(ctx, "owner", entity.CreateAPIKeyRequest{Description: "ci"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if created.Key == "" || created.APIKey.Hash == created.Key {
		t.Fatal("plaintext key must be returned and never stored")
	}

	if ok, err := keys.Verify(ctx, created.Key); err != nil || !ok {
		t.Fatalf("Verify(new key) = %v, %v", ok, err)
	}
	if ok, _ := keys.Verify(ctx, "not-a-key"); ok {
		t.Error("unknown key verified")
	}
	if ok, _ := keys.Verify(ctx, ""); ok {
		t.Error("empty key verified")
	}

	list, _ := keys.List(ctx, "owner")
	if len(list) != 1 {
		t.Fatalf("List() returned %d keys", len(list))
	}

	if err := keys.Revoke(ctx, "someone-else", created.APIKey.Id); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Revoke by non-owner = %v", err)
	}
	if err := keys.Revoke(ctx, "owner", created.APIKey.Id); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if ok, _ := keys.Verify(ctx, created.Key); ok {
		t.Error("revoked key still verifies")
	}
}

func TestAPIKeyExpiry(t *testing.T) {
	ctx := context.Background()
	keys := newTestAPIKeys(t)

	if _, err := keys.Create(ctx, "owner", entity.CreateAPIKeyRequest{TTLSeconds: -1}); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("negative ttl: %v", err)
	}

	created, _ := keys.Create(ctx, "owner", entity.CreateAPIKeyRequest{TTLSeconds: 60})
	if ok, _ := keys.Verify(ctx, created.Key); !ok {
		t.Fatal("fresh key should verify")
	}

	keys.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if ok, _ := keys.Verify(ctx, created.Key); ok {
		t.Error("expired key still verifies")
	}
}
