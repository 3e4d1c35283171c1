package dto

import "github.com/google/uuid"

type VerifyResponse struct {
	Matched    bool       `json:"matched"`
	Ambiguous  bool       `json:"ambiguous,omitempty"`
	IdentityID *uuid.UUID `json:"identity_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Distance   float64    `json:"distance"`
	Confidence float64    `json:"confidence"`
}

type SessionResponse struct {
	SessionID        uuid.UUID `json:"session_id"`
	LivenessDeadline string    `json:"liveness_deadline"`
	Deadline         string    `json:"deadline"`
}

type FrameResponse struct {
	State   string          `json:"state"`
	Outcome string          `json:"outcome,omitempty"`
	Match   *VerifyResponse `json:"match,omitempty"`
}
