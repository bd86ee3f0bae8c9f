package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"ccfolio/internal/entity"
	"ccfolio/internal/repository"
	"ccfolio/pkg/jwt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields        = errors.New("all fields are required")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrEmailAlreadyTaken    = errors.New("email already taken")
	ErrUsernameAlreadyTaken = errors.New("username already taken")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrExpiredRefreshToken  = errors.New("refresh token has expired")
	ErrRevokedRefreshToken  = errors.New("refresh token has been revoked")
)

type AuthUsecase interface {
	Register(ctx context.Context, req entity.RegisterRequest, info entity.SessionInfo) (entity.AuthResponse, error)
	Login(ctx context.Context, req entity.LoginRequest, info entity.SessionInfo) (entity.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string, info entity.SessionInfo) (entity.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAllDevices(ctx context.Context, userId string) error
	PurgeExpiredTokens(ctx context.Context) (int64, error)
	ValidateAccessToken(token string) (*entity.TokenClaims, error)
}

type authUsecase struct {
	userRepo         repository.UserRepository
	refreshTokenRepo repository.RefreshTokenRepository
	jwtManager       *jwt.JWTManager
	bcryptCost       int
}

func NewAuthUsecase(
	userRepo repository.UserRepository,
	refreshTokenRepo repository.RefreshTokenRepository,
	jwtManager *jwt.JWTManager,
) AuthUsecase {
	return &authUsecase{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		jwtManager:       jwtManager,
		bcryptCost:       bcrypt.DefaultCost,
	}
}

func (u *authUsecase) Register(ctx context.Context, req entity.RegisterRequest, info entity.SessionInfo) (entity.AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Password == "" || req.Username == "" || req.Name == "" {
		return entity.AuthResponse{}, ErrMissingFields
	}

	emailExists, err := u.userRepo.EmailExists(ctx, req.Email)
	if err != nil {
		return entity.AuthResponse{}, err
	}
	if emailExists {
		return entity.AuthResponse{}, ErrEmailAlreadyTaken
	}

	usernameExists, err := u.userRepo.UsernameExists(ctx, req.Username)
	if err != nil {
		return entity.AuthResponse{}, err
	}
	if usernameExists {
		return entity.AuthResponse{}, ErrUsernameAlreadyTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), u.bcryptCost)
	if err != nil {
		return entity.AuthResponse{}, err
	}

	user := entity.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashedPassword),
		Name:     req.Name,
	}
	user.Id, err = u.userRepo.Create(ctx, user)
	if err != nil {
		return entity.AuthResponse{}, err
	}

	return u.issueTokens(ctx, user, info)
}

func (u *authUsecase) Login(ctx context.Context, req entity.LoginRequest, info entity.SessionInfo) (entity.AuthResponse, error) {
	user, err := u.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return entity.AuthResponse{}, ErrInvalidCredentials
		}
		return entity.AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return entity.AuthResponse{}, ErrInvalidCredentials
	}

	return u.issueTokens(ctx, user, info)
}

// RefreshToken rotates: the presented token is revoked and a new pair issued.
func (u *authUsecase) RefreshToken(ctx context.Context, refreshTokenString string, info entity.SessionInfo) (entity.AuthResponse, error) {
	refreshToken, err := u.refreshTokenRepo.GetByToken(ctx, refreshTokenString)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return entity.AuthResponse{}, ErrInvalidRefreshToken
		}
		return entity.AuthResponse{}, err
	}
	if refreshToken.IsRevoked {
		return entity.AuthResponse{}, ErrRevokedRefreshToken
	}
	if time.Now().After(refreshToken.ExpiresAt) {
		return entity.AuthResponse{}, ErrExpiredRefreshToken
	}

	user, err := u.userRepo.Get(ctx, refreshToken.UserId)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return entity.AuthResponse{}, ErrInvalidRefreshToken
		}
		return entity.AuthResponse{}, err
	}

	if err := u.refreshTokenRepo.Revoke(ctx, refreshTokenString); err != nil {
		return entity.AuthResponse{}, err
	}

	return u.issueTokens(ctx, user, info)
}

func (u *authUsecase) issueTokens(ctx context.Context, user entity.User, info entity.SessionInfo) (entity.AuthResponse, error) {
	accessToken, err := u.jwtManager.GenerateAccessToken(user)
	if err != nil {
		return entity.AuthResponse{}, err
	}

	refreshTokenString, err := u.jwtManager.GenerateRefreshToken()
	if err != nil {
		return entity.AuthResponse{}, err
	}

	err = u.refreshTokenRepo.Create(ctx, entity.RefreshToken{
		UserId:     user.Id,
		Token:      refreshTokenString,
		ExpiresAt:  u.jwtManager.GetRefreshTokenExpiration(),
		DeviceInfo: info.DeviceInfo,
		IpAddress:  info.IpAddress,
	})
	if err != nil {
		return entity.AuthResponse{}, err
	}

	user.Password = ""
	return entity.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenString,
		User:         user,
	}, nil
}

func (u *authUsecase) Logout(ctx context.Context, refreshToken string) error {
	err := u.refreshTokenRepo.Revoke(ctx, refreshToken)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidRefreshToken
	}
	return err
}

func (u *authUsecase) LogoutAllDevices(ctx context.Context, userId string) error {
	return u.refreshTokenRepo.RevokeAllByUserId(ctx, userId)
}

// PurgeExpiredTokens deletes refresh tokens past their expiry.
func (u *authUsecase) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return u.refreshTokenRepo.DeleteExpired(ctx)
}

func (u *authUsecase) ValidateAccessToken(token string) (*entity.TokenClaims, error) {
	return u.jwtManager.ValidateAccessToken(token)
}
