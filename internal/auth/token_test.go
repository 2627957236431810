package auth

import (
	"testing"
	"time"

	"pulsefeed/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSettings(now time.Time) Settings {
	return Settings{
		Secret:   testSecret,
		Issuer:   "pulsefeed-api",
		Audience: "pulsefeed-client",
		TTL:      time.Hour,
		Now:      func() time.Time { return now },
	}
}

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerifier_Verify(t *testing.T) {
	issuer := NewIssuer(testSettings(fixedNow))
	valid, err := issuer.Issue(&models.User{ID: 42, Name: "Max"})
	require.NoError(t, err)

	base := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    "pulsefeed-api",
			Audience:  jwt.ClaimStrings{"pulsefeed-client"},
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
		}
	}

	wrongIssuer := base()
	wrongIssuer.Issuer = "someone-else"
	noExpiry := base()
	noExpiry.ExpiresAt = nil
	badSubject := base()
	badSubject.Subject = "max"

	tests := []struct {
		name       string
		header     string
		now        time.Time
		expectedID uint
		expectMsg  string
	}{
		{name: "valid token", header: "Bearer " + valid, now: fixedNow, expectedID: 42},
		{name: "lowercase scheme", header: "bearer " + valid, now: fixedNow, expectedID: 42},
		{name: "missing header", header: "", now: fixedNow, expectMsg: MsgTokenMissing},
		{name: "scheme only", header: "Bearer", now: fixedNow, expectMsg: MsgTokenMissing},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", now: fixedNow, expectMsg: MsgTokenMissing},
		{name: "garbage token", header: "Bearer xyz", now: fixedNow, expectMsg: MsgTokenInvalid},
		{name: "expired", header: "Bearer " + valid, now: fixedNow.Add(2 * time.Hour), expectMsg: MsgTokenInvalid},
		{
			name:      "wrong secret",
			header:    "Bearer " + signClaims(t, jwt.SigningMethodHS256, []byte("other-secret"), base()),
			now:       fixedNow,
			expectMsg: MsgTokenInvalid,
		},
		{
			name:      "unsigned token",
			header:    "Bearer " + signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, base()),
			now:       fixedNow,
			expectMsg: MsgTokenInvalid,
		},
		{
			name:      "wrong issuer",
			header:    "Bearer " + signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), wrongIssuer),
			now:       fixedNow,
			expectMsg: MsgTokenInvalid,
		},
		{
			name:      "missing expiry",
			header:    "Bearer " + signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry),
			now:       fixedNow,
			expectMsg: MsgTokenInvalid,
		},
		{
			name:      "non numeric subject",
			header:    "Bearer " + signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), badSubject),
			now:       fixedNow,
			expectMsg: MsgTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVerifier(testSettings(tt.now))
			identity, err := v.Verify(tt.header)

			if tt.expectMsg == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedID, identity.UserID)
				assert.Equal(t, "Max", identity.Name)
				assert.NotEmpty(t, identity.TokenID)
				assert.True(t, fixedNow.Add(time.Hour).Equal(identity.ExpiresAt))
				return
			}

			require.Error(t, err)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, models.CodeUnauthenticated, appErr.Code)
			assert.Equal(t, tt.expectMsg, appErr.Message)
		})
	}
}

func TestIssuer_Issue(t *testing.T) {
	issuer := NewIssuer(testSettings(fixedNow))

	_, err := issuer.Issue(nil)
	assert.Error(t, err)

	_, err = NewIssuer(Settings{}).Issue(&models.User{ID: 1})
	assert.Error(t, err)

	a, err := issuer.Issue(&models.User{ID: 1, Name: "a"})
	require.NoError(t, err)
	b, err := issuer.Issue(&models.User{ID: 1, Name: "a"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "each token carries its own jti")
}
