package service

import (
	"context"
	"net/http"
	"strings"

	"pulsefeed/internal/models"
	"pulsefeed/internal/repository"
)

const (
	MsgNoUserFound = "No user found"
	MsgStatusNoOp  = "Status is the same"
	MsgNoStatus    = "Status was not provided"
)

type UserService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// GetStatus returns the acting user's status. A missing user is reported as
// Forbidden, not NotFound.
func (s *UserService) GetStatus(ctx context.Context, userID uint) (string, error) {
	user, err := s.actingUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Status, nil
}

// UpdateStatus sets a new status. Setting the current value again is rejected.
func (s *UserService) UpdateStatus(ctx context.Context, userID uint, status string) (string, error) {
	in := StatusInput{Status: strings.TrimSpace(status)}
	if err := in.Validate(); err != nil {
		return "", models.NewFieldValidationError(MsgNoStatus, fieldErrors(err))
	}

	user, err := s.actingUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.Status == in.Status {
		return "", models.NewNoOpError(MsgStatusNoOp)
	}

	if err := s.users.UpdateStatus(ctx, user.ID, in.Status); err != nil {
		if models.StatusFor(err) == http.StatusNotFound {
			return "", models.NewForbiddenError(MsgNoUserFound)
		}
		return "", err
	}
	return in.Status, nil
}

func (s *UserService) actingUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if models.StatusFor(err) == http.StatusNotFound {
			return nil, models.NewForbiddenError(MsgNoUserFound)
		}
		return nil, err
	}
	return user, nil
}
