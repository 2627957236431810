// Package auth issues and verifies the bearer tokens that identify callers.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pulsefeed/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Messages returned to unauthenticated callers.
const (
	MsgTokenMissing = "Unauthorized. Token is missing"
	MsgTokenInvalid = "Unauthorized. Token is invalid"
)

// Identity is the caller derived from a verified token.
type Identity struct {
	UserID    uint
	Name      string
	TokenID   string
	ExpiresAt time.Time
}

// Claims is the token payload.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Settings are shared by Verifier and Issuer.
type Settings struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s Settings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Verifier validates Authorization header values.
type Verifier struct {
	settings Settings
}

// NewVerifier returns a Verifier bound to the shared secret.
func NewVerifier(settings Settings) *Verifier {
	return &Verifier{settings: settings}
}

// Verify parses a raw Authorization header of the form "Bearer <token>".
// Every failure is an UNAUTHENTICATED AppError.
func (v *Verifier) Verify(rawHeader string) (Identity, error) {
	rawHeader = strings.TrimSpace(rawHeader)
	if rawHeader == "" {
		return Identity{}, models.NewUnauthorizedError(MsgTokenMissing)
	}

	scheme, token, found := strings.Cut(rawHeader, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return Identity{}, models.NewUnauthorizedError(MsgTokenMissing)
	}

	return v.VerifyToken(token)
}

// VerifyToken validates a bare token string.
func (v *Verifier) VerifyToken(token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.settings.now),
	}
	if v.settings.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.settings.Issuer))
	}
	if v.settings.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.settings.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(v.settings.Secret), nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Identity{}, &models.AppError{
			Code:    models.CodeUnauthenticated,
			Message: MsgTokenInvalid,
			Err:     err,
		}
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return Identity{}, models.NewUnauthorizedError(MsgTokenInvalid)
	}

	identity := Identity{
		UserID:  uint(userID),
		Name:    claims.Name,
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// Issuer mints tokens for authenticated users.
type Issuer struct {
	settings Settings
}

// NewIssuer returns an Issuer bound to the shared secret.
func NewIssuer(settings Settings) *Issuer {
	return &Issuer{settings: settings}
}

// Issue signs a token for user valid for the configured TTL.
func (i *Issuer) Issue(user *models.User) (string, error) {
	if i.settings.Secret == "" {
		return "", errors.New("JWT secret not configured")
	}
	if user == nil || user.ID == 0 {
		return "", errors.New("cannot issue token without a user id")
	}
	ttl := i.settings.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := i.settings.now()
	claims := Claims{
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    i.settings.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if i.settings.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.settings.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.settings.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
