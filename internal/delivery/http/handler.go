package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ccfolio/infrastructure/ws"
	wsDelivery "ccfolio/internal/delivery/websocket"
	"ccfolio/internal/entity"
	"ccfolio/internal/network"
	"ccfolio/internal/repository"
	"ccfolio/internal/usecase"

	"go.uber.org/zap"
)

type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(res *network.Response, status int, message string, data any) error {
	return res.JSON(status, Response{Message: message, Data: data})
}

func decode(req *network.Request, v any) error {
	return json.Unmarshal(req.Body, v)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HttpHandler struct {
	userUc usecase.UserUsecase
	hub    ws.Hub
	health HealthCheck
	log    *zap.Logger
}

func NewHttpHandler(userUc usecase.UserUsecase, hub ws.Hub, health HealthCheck, log *zap.Logger) *HttpHandler {
	return &HttpHandler{
		userUc: userUc,
		hub:    hub,
		health: health,
		log:    log,
	}
}

// GET /ping
func (h *HttpHandler) Ping(_ *network.Request, res *network.Response) error {
	res.Text(http.StatusOK, "pong")
	return nil
}

// GET /health
func (h *HttpHandler) Health(req *network.Request, res *network.Response) error {
	data := map[string]any{"peers": h.hub.Count()}
	if h.health != nil {
		if err := h.health(req.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			return writeJSON(res, http.StatusServiceUnavailable, "unavailable", data)
		}
	}
	return writeJSON(res, http.StatusOK, "ok", data)
}

// GET /users/me
func (h *HttpHandler) Me(req *network.Request, res *network.Response) error {
	claims, ok := ClaimsFrom(req.Context())
	if !ok {
		return writeJSON(res, http.StatusUnauthorized, "unauthorized", nil)
	}

	user, err := h.userUc.Get(req.Context(), claims.UserId)
	if err != nil {
		return err
	}
	return writeJSON(res, http.StatusOK, "success", user)
}

// POST /users/me
func (h *HttpHandler) UpdateMe(req *network.Request, res *network.Response) error {
	claims, ok := ClaimsFrom(req.Context())
	if !ok {
		return writeJSON(res, http.StatusUnauthorized, "unauthorized", nil)
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := decode(req, &body); err != nil {
		return writeJSON(res, http.StatusBadRequest, "invalid request body", nil)
	}

	user, err := h.userUc.UpdateName(req.Context(), claims.UserId, body.Name)
	if err != nil {
		if errors.Is(err, usecase.ErrMissingFields) {
			return writeJSON(res, http.StatusBadRequest, "name is required", nil)
		}
		return err
	}
	return writeJSON(res, http.StatusOK, "success", user)
}

// GET /users?username=
func (h *HttpHandler) FindUser(req *network.Request, res *network.Response) error {
	user, err := h.userUc.FindByUsername(req.Context(), req.Query.Get("username"))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrMissingFields):
			return writeJSON(res, http.StatusBadRequest, "username is required", nil)
		case errors.Is(err, repository.ErrUserNotFound):
			return writeJSON(res, http.StatusNotFound, "user not found", nil)
		}
		return err
	}
	return writeJSON(res, http.StatusOK, "success", user)
}

// POST /broadcast
func (h *HttpHandler) Broadcast(req *network.Request, res *network.Response) error {
	claims, ok := ClaimsFrom(req.Context())
	if !ok {
		return writeJSON(res, http.StatusUnauthorized, "unauthorized", nil)
	}

	var body wsDelivery.MessageArgs
	if err := decode(req, &body); err != nil {
		return writeJSON(res, http.StatusBadRequest, "invalid request body", nil)
	}
	if strings.TrimSpace(body.Message) == "" {
		return writeJSON(res, http.StatusBadRequest, "message is required", nil)
	}

	payload, err := json.Marshal(wsDelivery.BroadcastMessage{From: claims.Username, Message: body.Message})
	if err != nil {
		return err
	}
	delivered := h.hub.Broadcast(payload)
	h.log.Info("broadcast from http",
		zap.String("user", claims.UserId),
		zap.Int("delivered", delivered))

	return writeJSON(res, http.StatusOK, "success", map[string]int{"delivered": delivered})
}

func clientInfo(req *network.Request) entity.SessionInfo {
	ip := req.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = req.RemoteAddr
	}
	return entity.SessionInfo{
		DeviceInfo: req.Header.Get("User-Agent"),
		IpAddress:  ip,
	}
}
