package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CodeOf(t *testing.T) {
	err := New(CodeDuplicateFace, "face already enrolled")
	assert.Equal(t, CodeDuplicateFace, CodeOf(err))
	assert.True(t, Is(err, CodeDuplicateFace))
	assert.False(t, Is(err, CodeNotFound))

	// Untyped errors carry no code.
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func Test_CodeSurvivesWrapping(t *testing.T) {
	inner := Wrap(CodeStorage, "insert template", errors.New("connection reset"))
	outer := fmt.Errorf("enroll: %w", inner)

	assert.True(t, Is(outer, CodeStorage))
	assert.ErrorContains(t, outer, "connection reset")
}

func Test_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeStorage, "query", cause)
	require.ErrorIs(t, err, cause)
}

func Test_IsAuth(t *testing.T) {
	assert.True(t, IsAuth(New(CodeAuthMalformed, "bad token")))
	assert.True(t, IsAuth(New(CodeAuthExpired, "token expired")))
	assert.True(t, IsAuth(New(CodeAuthUnknown, "invalid email or password")))
	assert.False(t, IsAuth(New(CodeValidation, "bad input")))
	assert.False(t, IsAuth(nil))
}
