// Package matcher renders accept/deny decisions by scanning the enrolled
// template store for the closest face to a probe embedding.
package matcher

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/internal/models"
	"github.com/your-org/faceauth/internal/observability"
)

// TemplateSource enumerates every stored template in a stable order.
// Implementations must make each call a fresh, restartable iteration.
// An approximate-nearest-neighbour index can be slotted in behind this
// interface without touching the decision logic.
type TemplateSource interface {
	AllTemplates(ctx context.Context, fn func(identityID uuid.UUID, name string, embedding []float32) error) error
	Dimension() int
}

type Matcher struct {
	source    TemplateSource
	threshold float64
}

// New creates a matcher. threshold is the maximum cosine distance for a
// match; lower is stricter.
func New(source TemplateSource, threshold float64) *Matcher {
	return &Matcher{source: source, threshold: threshold}
}

func (m *Matcher) Threshold() float64 { return m.threshold }

// BestMatch scans every template and returns the decision for probe.
// Identities with several templates match on their closest one. An exact
// distance tie between two distinct identities at or below the threshold
// is reported as ambiguous and never accepted.
func (m *Matcher) BestMatch(ctx context.Context, probe []float32) (models.MatchResult, error) {
	return m.bestMatchAt(ctx, probe, m.threshold)
}

// BestMatchAt runs the same scan against a caller-supplied threshold.
// Enrollment uses this with the stricter duplicate threshold.
func (m *Matcher) BestMatchAt(ctx context.Context, probe []float32, threshold float64) (models.MatchResult, error) {
	return m.bestMatchAt(ctx, probe, threshold)
}

func (m *Matcher) bestMatchAt(ctx context.Context, probe []float32, threshold float64) (models.MatchResult, error) {
	if len(probe) != m.source.Dimension() {
		return models.MatchResult{}, errs.Newf(errs.CodeValidation,
			"probe embedding has dimension %d, store uses %d", len(probe), m.source.Dimension())
	}

	result := models.MatchResult{
		Distance:  math.Inf(1),
		Threshold: threshold,
	}

	start := time.Now()
	scanned := 0
	err := m.source.AllTemplates(ctx, func(identityID uuid.UUID, name string, embedding []float32) error {
		scanned++
		d := CosineDistance(probe, embedding)
		switch {
		case d < result.Distance:
			// New global best. A previous tie no longer matters.
			id := identityID
			result.IdentityID = &id
			result.IdentityName = name
			result.Distance = d
			result.Ambiguous = false
		case d == result.Distance && result.IdentityID != nil && *result.IdentityID != identityID:
			// Same distance from a different identity. Only relevant
			// when the distance would otherwise be accepted.
			if d <= threshold {
				result.Ambiguous = true
			}
		}
		return nil
	})
	observability.MatchDuration.Observe(time.Since(start).Seconds())
	observability.TemplatesScanned.Observe(float64(scanned))
	if err != nil {
		return models.MatchResult{}, err
	}

	if math.IsInf(result.Distance, 1) {
		// Nothing comparable was scanned. Report the cosine-distance
		// ceiling; +Inf is not JSON-encodable and would break every
		// consumer of the result.
		result.Distance = 2
	}
	if result.IdentityID == nil {
		// Empty store: nothing to match against.
		return result, nil
	}

	result.Matched = result.Distance <= threshold && !result.Ambiguous
	if !result.Matched && result.Distance > threshold {
		result.IdentityID = nil
		result.IdentityName = ""
	}
	return result, nil
}

// CosineDistance returns 1 - cos(a, b), in [0, 2]. Zero-norm vectors are
// treated as maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1 - sim
}
