package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/your-org/faceauth/internal/errs"
)

const minPasswordLength = 6

// HashPassword creates a bcrypt hash of the given password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", errs.Newf(errs.CodeValidation, "password must be at least %d characters", minPasswordLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", errs.New(errs.CodeValidation, "password is too long")
		}
		return "", errs.Wrap(errs.CodeStorage, "hash password", err)
	}
	return string(hashed), nil
}

// VerifyPassword checks a plaintext password against a bcrypt hash.
// The error is deliberately generic so callers cannot tell a bad
// password from a missing account.
func VerifyPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return errs.New(errs.CodeAuthUnknown, "invalid email or password")
	}
	return nil
}
