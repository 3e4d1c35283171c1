package models

import (
	"time"

	"github.com/google/uuid"
)

// Event outcomes recorded in the audit log.
const (
	OutcomeVerified     = "verified"
	OutcomeDenied       = "denied"
	OutcomeAmbiguous    = "ambiguous"
	OutcomeLivenessFail = "liveness_not_confirmed"
	OutcomeEnrolled     = "enrolled"
)

// VerifyEvent is one entry in the verification/enrollment audit trail.
// Events are published to the queue by the flows and persisted by the
// API-side consumer.
type VerifyEvent struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	AccountID  uuid.UUID  `json:"account_id" db:"account_id"`
	Outcome    string     `json:"outcome" db:"outcome"`
	IdentityID *uuid.UUID `json:"identity_id,omitempty" db:"identity_id"`
	Distance   float64    `json:"distance" db:"distance"`
	Confidence float64    `json:"confidence" db:"confidence"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
