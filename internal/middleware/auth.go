// Package middleware provides authentication, rate limiting, tracing, metrics
// and logging middleware for the HTTP boundary.
package middleware

import (
	"context"
	"log/slog"

	"pulsefeed/internal/auth"
	"pulsefeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals written by AuthRequired.
const (
	LocalUserID   = "userID"
	LocalIdentity = "identity"
)

// MsgTokenRevoked is returned for tokens invalidated by logout.
const MsgTokenRevoked = "Unauthorized. Token has been revoked"

// RevocationChecker reports whether a token id was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthRequired verifies the Authorization header and attaches the identity
// to the request. revocations may be nil.
func AuthRequired(verifier *auth.Verifier, revocations RevocationChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := verifier.Verify(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		if revocations != nil && identity.TokenID != "" {
			revoked, err := revocations.IsRevoked(c.UserContext(), identity.TokenID)
			if err != nil {
				Logger.ErrorContext(c.UserContext(), "Failed to check token revocation",
					slog.String("error", err.Error()),
				)
				return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
			}
			if revoked {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError(MsgTokenRevoked))
			}
		}

		c.Locals(LocalUserID, identity.UserID)
		c.Locals(LocalIdentity, identity)
		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), UserIDKey, identity.UserID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// CurrentIdentity returns the identity attached by AuthRequired.
func CurrentIdentity(c *fiber.Ctx) (auth.Identity, bool) {
	identity, ok := c.Locals(LocalIdentity).(auth.Identity)
	return identity, ok
}

// CurrentUserID returns the acting user id attached by AuthRequired.
func CurrentUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(LocalUserID).(uint)
	return id, ok && id != 0
}
