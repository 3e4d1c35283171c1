package models

import "github.com/google/uuid"

// MatchResult is the outcome of comparing a probe embedding against the
// enrolled templates. It is ephemeral and never persisted.
type MatchResult struct {
	Matched      bool       `json:"matched"`
	IdentityID   *uuid.UUID `json:"identity_id,omitempty"`
	IdentityName string     `json:"identity_name,omitempty"`
	// Distance is the best (smallest) cosine distance seen across all
	// templates; lower is a closer match.
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
	// Ambiguous is set when two distinct identities tie exactly at or
	// below the threshold. An ambiguous result is never Matched.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Confidence maps the distance onto a 0..100 score relative to the
// decision threshold. A distance of 0 is 100; a distance at or beyond
// the threshold is 0.
func (r MatchResult) Confidence() float64 {
	if r.Threshold <= 0 {
		return 0
	}
	c := (1 - r.Distance/r.Threshold) * 100
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
