package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceauth/internal/errs"
)

func Test_HashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hash)

	require.NoError(t, VerifyPassword("correct horse battery", hash))

	err = VerifyPassword("wrong password", hash)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeAuthUnknown))
	assert.ErrorContains(t, err, "invalid email or password")
}

func Test_HashPassword_TooShort(t *testing.T) {
	_, err := HashPassword("short")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeValidation))
}

func Test_HashPassword_TooLong(t *testing.T) {
	// bcrypt caps input at 72 bytes.
	_, err := HashPassword(strings.Repeat("a", 100))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeValidation))
}

func Test_HashPassword_SaltedPerCall(t *testing.T) {
	h1, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	h2, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
