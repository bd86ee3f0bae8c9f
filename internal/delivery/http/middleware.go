package http

import (
	"context"
	"net/http"
	"strings"

	"ccfolio/internal/entity"
	"ccfolio/internal/network"
)

type contextKey string

const UserContextKey contextKey = "user"

// TokenValidator is the slice of the auth usecase the middleware needs.
type TokenValidator interface {
	ValidateAccessToken(token string) (*entity.TokenClaims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
	}
}

// Authenticate requires a valid "Bearer <token>" Authorization header and
// places the token's claims into the request context.
func (m *AuthMiddleware) Authenticate(next network.Handler) network.Handler {
	return func(req *network.Request, res *network.Response) error {
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			return writeJSON(res, http.StatusUnauthorized, "authorization header required", nil)
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || scheme != "Bearer" || token == "" {
			return writeJSON(res, http.StatusUnauthorized, "invalid authorization header format", nil)
		}

		claims, err := m.tokens.ValidateAccessToken(token)
		if err != nil {
			return writeJSON(res, http.StatusUnauthorized, "invalid or expired token", nil)
		}

		ctx := context.WithValue(req.Context(), UserContextKey, claims)
		return next(req.WithContext(ctx), res)
	}
}

func ClaimsFrom(ctx context.Context) (*entity.TokenClaims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*entity.TokenClaims)
	return claims, ok && claims != nil
}
