package dto

import "github.com/google/uuid"

type VerifyEventResponse struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  uuid.UUID  `json:"account_id"`
	Outcome    string     `json:"outcome"`
	IdentityID *uuid.UUID `json:"identity_id,omitempty"`
	Distance   float64    `json:"distance"`
	Confidence float64    `json:"confidence"`
	CreatedAt  string     `json:"created_at"`
}

type StatsResponse struct {
	Identities int `json:"identities"`
	Templates  int `json:"templates"`
	Accounts   int `json:"accounts"`
	Events     int `json:"events"`
}

type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
