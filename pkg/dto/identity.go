package dto

import "github.com/google/uuid"

type IdentityResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	TemplateCount int       `json:"template_count"`
	CreatedAt     string    `json:"created_at"`
}

type TemplateResponse struct {
	ID         uuid.UUID `json:"id"`
	IdentityID uuid.UUID `json:"identity_id"`
	SourceKey  string    `json:"source_key"`
	CapturedAt string    `json:"captured_at"`
}
