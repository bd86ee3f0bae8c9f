package usecase

import (
	"context"
	"strings"

	"ccfolio/internal/entity"
	"ccfolio/internal/repository"
)

type UserUsecase interface {
	Get(ctx context.Context, userId string) (entity.User, error)
	FindByUsername(ctx context.Context, username string) (entity.User, error)
	UpdateName(ctx context.Context, userId, name string) (entity.User, error)
}

type userUsecase struct {
	userRepo repository.UserRepository
}

func NewUserUseCase(userRepo repository.UserRepository) UserUsecase {
	return &userUsecase{
		userRepo: userRepo,
	}
}

func (u *userUsecase) Get(ctx context.Context, userId string) (entity.User, error) {
	user, err := u.userRepo.Get(ctx, userId)
	if err != nil {
		return entity.User{}, err
	}
	user.Password = ""
	return user, nil
}

// FindByUsername returns the public view of another user: no password, no email.
func (u *userUsecase) FindByUsername(ctx context.Context, username string) (entity.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return entity.User{}, ErrMissingFields
	}

	user, err := u.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return entity.User{}, err
	}
	user.Password = ""
	user.Email = ""
	return user, nil
}

func (u *userUsecase) UpdateName(ctx context.Context, userId, name string) (entity.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return entity.User{}, ErrMissingFields
	}

	user, err := u.userRepo.Get(ctx, userId)
	if err != nil {
		return entity.User{}, err
	}
	user.Name = name
	if err := u.userRepo.Update(ctx, user); err != nil {
		return entity.User{}, err
	}
	user.Password = ""
	return user, nil
}
