package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an enrolled person.
type Identity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FaceTemplate is one stored embedding sample belonging to an identity.
// Templates are immutable: they are only ever inserted or deleted.
type FaceTemplate struct {
	ID         uuid.UUID `json:"id" db:"id"`
	IdentityID uuid.UUID `json:"identity_id" db:"identity_id"`
	Embedding  []float32 `json:"embedding" db:"embedding"`
	SourceKey  string    `json:"source_key" db:"source_key"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}
