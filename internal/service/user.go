package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/repository"
)

// UserService exposes read-only account listings for administrators.
type UserService struct {
	users UserStore
}

// NewUserService creates a new UserService.
func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// List returns every user with the ids of their files and issued links.
func (s *UserService) List(ctx context.Context) ([]*model.UserDetail, error) {
	users, err := s.users.ListUserDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Get returns one user with the ids of their files and issued links.
func (s *UserService) Get(ctx context.Context, id string) (*model.UserDetail, error) {
	u, err := s.users.GetUserDetail(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
