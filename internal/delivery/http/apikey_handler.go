package http

import (
	"errors"
	"net/http"

	"ccfolio/internal/entity"
	"ccfolio/internal/network"
	"ccfolio/internal/usecase"

	"go.uber.org/zap"
)

type APIKeyHandler struct {
	apiKeyUc usecase.APIKeyUsecase
	log      *zap.Logger
}

func NewAPIKeyHandler(apiKeyUc usecase.APIKeyUsecase, log *zap.Logger) *APIKeyHandler {
	return &APIKeyHandler{apiKeyUc: apiKeyUc, log: log}
}

// POST /api-keys
func (h *APIKeyHandler) Create(req *network.Request, res *network.Response) error {
	claims, ok := ClaimsFrom(req.Context())
	if !ok {
		return writeJSON(res, http.StatusUnauthorized, "unauthorized", nil)
	}

	var body entity.CreateAPIKeyRequest
	if len(req.Body) > 0 {
		if err := decode(req, &body); err != nil {
			return writeJSON(res, http.StatusBadRequest, "invalid request body", nil)
		}
	}

	created, err := h.apiKeyUc.Create(req.Context(), claims.UserId, body)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidTTL) {
			return writeJSON(res, http.StatusBadRequest, err.Error(), nil)
		}
		return err
	}

	h.log.Info("api key created",
		zap.String("owner", claims.UserId),
		zap.String("key_id", created.APIKey.Id))
	return writeJSON(res, http.StatusCreated, "api key created; store it now, it is not shown again", created)
}

// GET /api-keys
func (h *APIKeyHandler) List(req *network.Request, res *network.Response) error {
	claims, ok := ClaimsFrom(req.Context())
	if !ok {
		return writeJSON(res, http.StatusUnauthorized, "unauthorized", nil)
	}

	keys, err := h.apiKeyUc.List(req.Context(), claims.UserId)
	if err != nil {
		return err
	}
	return writeJSON(res, http.StatusOK, "success", keys)
}

// POST /api-keys/revoke
func (h *APIKeyHandler) Revoke(req *network.Request, res *network.Response) error {
	claims, ok := ClaimsFrom(req.Context())
	if !ok {
		return writeJSON(res, http.StatusUnauthorized, "unauthorized", nil)
	}

	var body entity.RevokeAPIKeyRequest
	if err := decode(req, &body); err != nil {
		return writeJSON(res, http.StatusBadRequest, "invalid request body", nil)
	}

	switch err := h.apiKeyUc.Revoke(req.Context(), claims.UserId, body.Id); {
	case err == nil:
		return writeJSON(res, http.StatusOK, "api key revoked", nil)
	case errors.Is(err, usecase.ErrMissingFields):
		return writeJSON(res, http.StatusBadRequest, "id is required", nil)
	case errors.Is(err, usecase.ErrAPIKeyNotFound):
		return writeJSON(res, http.StatusNotFound, err.Error(), nil)
	default:
		return err
	}
}
