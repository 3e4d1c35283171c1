package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is an operator login. PasswordHash is a bcrypt hash; the
// plaintext password is never stored.
type Account struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
