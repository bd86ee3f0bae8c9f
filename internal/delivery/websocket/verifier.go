package websocket

import (
	"context"
	"time"

	"ccfolio/infrastructure/cache"

	"go.uber.org/zap"
)

const admissionTTL = time.Minute

// KeyChecker is the slice of the API key usecase admission needs.
type KeyChecker interface {
	Verify(ctx context.Context, key string) (bool, error)
}

// APIKeyVerifier admits push sessions whose api_key names an active key.
// Decisions are remembered for a minute, so a revoked key can keep opening
// sessions until its cached decision lapses.
type APIKeyVerifier struct {
	keys  KeyChecker
	cache *cache.MemCache[bool]
	log   *zap.Logger
}

func NewAPIKeyVerifier(keys KeyChecker, c *cache.MemCache[bool], log *zap.Logger) *APIKeyVerifier {
	return &APIKeyVerifier{keys: keys, cache: c, log: log}
}

func (v *APIKeyVerifier) Verify(ctx context.Context, credential string) bool {
	if ok, hit := v.cache.Get(credential); hit {
		return ok
	}

	ok, err := v.keys.Verify(ctx, credential)
	if err != nil {
		// lookup failures are not cached
		v.log.Warn("api key lookup failed", zap.Error(err))
		return false
	}
	v.cache.Set(credential, ok, admissionTTL)
	return ok
}
