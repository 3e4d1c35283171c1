package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceauth/internal/errs"
)

var accountID = uuid.New()

var tokenService = NewTokenService("test-signing-key", "test-issuer", time.Hour)

func Test_IssueAndValidate(t *testing.T) {
	token, err := tokenService.Issue(accountID, "alice@example.com", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tokenService.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, accountID.String(), claims.AccountID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "alice", claims.Name)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_Validate_Garbage(t *testing.T) {
	_, err := tokenService.Validate("not-a-token")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAuthMalformed))
}

func Test_Validate_Empty(t *testing.T) {
	_, err := tokenService.Validate("")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAuthMalformed))
}

func Test_Validate_Expired(t *testing.T) {
	expired := NewTokenService("test-signing-key", "test-issuer", -time.Minute)
	token, err := expired.Issue(accountID, "alice@example.com", "alice")
	require.NoError(t, err)

	// Same key, so the signature is fine; only the expiry is not.
	_, err = expired.Validate(token)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAuthExpired))
}

func Test_Validate_WrongKey(t *testing.T) {
	other := NewTokenService("other-signing-key", "test-issuer", time.Hour)
	token, err := other.Issue(accountID, "alice@example.com", "alice")
	require.NoError(t, err)

	_, err = tokenService.Validate(token)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAuthMalformed))
}

func Test_Validate_WrongIssuer(t *testing.T) {
	other := NewTokenService("test-signing-key", "other-issuer", time.Hour)
	token, err := other.Issue(accountID, "alice@example.com", "alice")
	require.NoError(t, err)

	_, err = tokenService.Validate(token)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAuthMalformed))
}

func Test_Validate_RejectsNoneAlgorithm(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		AccountID: accountID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "test-issuer",
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokenService.Validate(token)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAuthMalformed))
}

func Test_Validate_NonUUIDSubject(t *testing.T) {
	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: "not-a-uuid",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "test-issuer",
		},
	})
	token, err := bad.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = tokenService.Validate(token)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAuthMalformed))
}
