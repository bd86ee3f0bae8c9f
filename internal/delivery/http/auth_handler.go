package http

import (
	"errors"
	"net/http"
	"time"

	"ccfolio/internal/entity"
	"ccfolio/internal/network"
	"ccfolio/internal/usecase"

	"go.uber.org/zap"
)

const refreshCookie = "refresh_token"

type AuthHandler struct {
	authUc     usecase.AuthUsecase
	refreshTTL time.Duration
	log        *zap.Logger
}

func NewAuthHandler(authUc usecase.AuthUsecase, refreshTTL time.Duration, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authUc:     authUc,
		refreshTTL: refreshTTL,
		log:        log,
	}
}

// POST /auth/register
func (h *AuthHandler) Register(req *network.Request, res *network.Response) error {
	var body entity.RegisterRequest
	if err := decode(req, &body); err != nil {
		return writeJSON(res, http.StatusBadRequest, "invalid request body", nil)
	}

	if body.Email == "" || body.Password == "" || body.Username == "" || body.Name == "" {
		return writeJSON(res, http.StatusBadRequest, "email, username, password, and name are required", nil)
	}
	if len(body.Password) < 6 {
		return writeJSON(res, http.StatusBadRequest, "password must be at least 6 characters", nil)
	}
	if len(body.Username) < 3 {
		return writeJSON(res, http.StatusBadRequest, "username must be at least 3 characters", nil)
	}

	authResponse, err := h.authUc.Register(req.Context(), body, clientInfo(req))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrEmailAlreadyTaken), errors.Is(err, usecase.ErrUsernameAlreadyTaken):
			return writeJSON(res, http.StatusConflict, err.Error(), nil)
		case errors.Is(err, usecase.ErrMissingFields):
			return writeJSON(res, http.StatusBadRequest, err.Error(), nil)
		}
		return err
	}

	h.setRefreshTokenCookie(res, authResponse.RefreshToken)
	return writeJSON(res, http.StatusCreated, "registration successful", authResponse)
}

// POST /auth/login
func (h *AuthHandler) Login(req *network.Request, res *network.Response) error {
	var body entity.LoginRequest
	if err := decode(req, &body); err != nil {
		return writeJSON(res, http.StatusBadRequest, "invalid request body", nil)
	}
	if body.Email == "" || body.Password == "" {
		return writeJSON(res, http.StatusBadRequest, "email and password are required", nil)
	}

	authResponse, err := h.authUc.Login(req.Context(), body, clientInfo(req))
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			h.log.Info("login rejected", zap.String("remote", req.RemoteAddr))
			return writeJSON(res, http.StatusUnauthorized, "invalid email or password", nil)
		}
		return err
	}

	h.setRefreshTokenCookie(res, authResponse.RefreshToken)
	return writeJSON(res, http.StatusOK, "login successful", authResponse)
}

// POST /auth/refresh
func (h *AuthHandler) RefreshToken(req *network.Request, res *network.Response) error {
	refreshToken := refreshTokenFrom(req)
	if refreshToken == "" {
		return writeJSON(res, http.StatusBadRequest, "refresh token is required", nil)
	}

	authResponse, err := h.authUc.RefreshToken(req.Context(), refreshToken, clientInfo(req))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidRefreshToken),
			errors.Is(err, usecase.ErrExpiredRefreshToken),
			errors.Is(err, usecase.ErrRevokedRefreshToken):
			h.clearRefreshTokenCookie(res)
			return writeJSON(res, http.StatusUnauthorized, err.Error(), nil)
		}
		return err
	}

	h.setRefreshTokenCookie(res, authResponse.RefreshToken)
	return writeJSON(res, http.StatusOK, "token refreshed successfully", authResponse)
}

// POST /auth/logout
func (h *AuthHandler) Logout(req *network.Request, res *network.Response) error {
	if refreshToken := refreshTokenFrom(req); refreshToken != "" {
		if err := h.authUc.Logout(req.Context(), refreshToken); err != nil && !errors.Is(err, usecase.ErrInvalidRefreshToken) {
			return err
		}
	}

	h.clearRefreshTokenCookie(res)
	return writeJSON(res, http.StatusOK, "logout successful", nil)
}

// POST /auth/logout-all
func (h *AuthHandler) LogoutAllDevices(req *network.Request, res *network.Response) error {
	claims, ok := ClaimsFrom(req.Context())
	if !ok {
		return writeJSON(res, http.StatusUnauthorized, "unauthorized", nil)
	}

	if err := h.authUc.LogoutAllDevices(req.Context(), claims.UserId); err != nil {
		return err
	}

	h.clearRefreshTokenCookie(res)
	return writeJSON(res, http.StatusOK, "logged out from all devices successfully", nil)
}

// refreshTokenFrom prefers the cookie and falls back to the JSON body.
func refreshTokenFrom(req *network.Request) string {
	cookieReader := &http.Request{Header: req.Header}
	if cookie, err := cookieReader.Cookie(refreshCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var body entity.RefreshTokenRequest
	if err := decode(req, &body); err == nil {
		return body.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshTokenCookie(res *network.Response, token string) {
	cookie := &http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     "/auth",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.refreshTTL.Seconds()),
	}
	res.Header.Add("Set-Cookie", cookie.String())
}

func (h *AuthHandler) clearRefreshTokenCookie(res *network.Response) {
	cookie := &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/auth",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	}
	res.Header.Add("Set-Cookie", cookie.String())
}
