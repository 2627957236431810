package service

import (
	"context"
	"time"

	"pulsefeed/internal/auth"
	"pulsefeed/internal/models"
	"pulsefeed/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

const MsgInvalidCredentials = "Invalid credentials"

// TokenIssuer mints access tokens for authenticated users.
type TokenIssuer interface {
	Issue(user *models.User) (string, error)
}

// TokenRevoker remembers logged-out token ids until they expire.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

type AuthService struct {
	users       repository.UserRepository
	issuer      TokenIssuer
	revocations TokenRevoker
	hashCost    int
}

type LoginResult struct {
	Token string
	User  *models.User
}

func NewAuthService(users repository.UserRepository, issuer TokenIssuer, revocations TokenRevoker) *AuthService {
	return &AuthService{
		users:       users,
		issuer:      issuer,
		revocations: revocations,
		hashCost:    bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost, mostly for tests.
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.hashCost = cost
	return s
}

// Signup registers a user. A taken email is a validation error on the email field.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, validationFailed(err)
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewFieldValidationError(repository.MsgEmailTaken, map[string]string{"email": repository.MsgEmailTaken})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: string(hashedPassword),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks the credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError(MsgInvalidCredentials)
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); cmpErr != nil {
		return nil, models.NewUnauthorizedError(MsgInvalidCredentials)
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &LoginResult{Token: token, User: user}, nil
}

// Logout revokes the token behind identity for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, identity auth.Identity) error {
	if s.revocations == nil || identity.TokenID == "" {
		return nil
	}
	if err := s.revocations.Revoke(ctx, identity.TokenID, identity.ExpiresAt); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
