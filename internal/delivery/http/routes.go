package http

import "ccfolio/internal/network"

// MapHttpRoutes registers every route on the exact-match router. Paths are
// literal; the query string never takes part in matching.
func MapHttpRoutes(r *network.Router, httpHandler *HttpHandler, authHandler *AuthHandler, apiKeyHandler *APIKeyHandler, authMiddleware *AuthMiddleware) {
	protected := authMiddleware.Authenticate

	r.Get("/ping", httpHandler.Ping)
	r.Get("/health", httpHandler.Health)

	r.Post("/auth/register", authHandler.Register)
	r.Post("/auth/login", authHandler.Login)
	r.Post("/auth/refresh", authHandler.RefreshToken)
	r.Post("/auth/logout", authHandler.Logout)
	r.Post("/auth/logout-all", protected(authHandler.LogoutAllDevices))

	r.Get("/users", protected(httpHandler.FindUser))
	r.Get("/users/me", protected(httpHandler.Me))
	r.Post("/users/me", protected(httpHandler.UpdateMe))

	r.Post("/api-keys", protected(apiKeyHandler.Create))
	r.Get("/api-keys", protected(apiKeyHandler.List))
	r.Post("/api-keys/revoke", protected(apiKeyHandler.Revoke))

	r.Post("/broadcast", protected(httpHandler.Broadcast))
}
