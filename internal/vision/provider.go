// Package vision is the boundary to the embedding provider: a black box
// that turns an image into a fixed-length face embedding plus a per-frame
// eye-openness measurement for liveness.
package vision

import (
	"context"

	"github.com/your-org/faceauth/internal/errs"
)

// Provider extracts face measurements from still images. Implementations
// must report exactly-one-face inputs: zero faces is a NoFaceDetected
// error, two or more is a MultipleFaces error.
type Provider interface {
	// Embed returns the face embedding for the single face in image.
	Embed(ctx context.Context, image []byte) ([]float32, error)
	// EyeOpenness returns a scalar that drops when the subject's eyes
	// close. Used frame-by-frame during liveness checks.
	EyeOpenness(ctx context.Context, image []byte) (float64, error)
	// Dimension is the fixed embedding length.
	Dimension() int
}

// retryProvider retries Embed once, and only on a NoFaceDetected error.
// Transient single-frame detection misses are common with low-quality
// captures; every other failure surfaces immediately.
type retryProvider struct {
	Provider
}

// WithRetry wraps p with the bounded retry policy.
func WithRetry(p Provider) Provider {
	return &retryProvider{Provider: p}
}

func (r *retryProvider) Embed(ctx context.Context, image []byte) ([]float32, error) {
	emb, err := r.Provider.Embed(ctx, image)
	if err != nil && errs.Is(err, errs.CodeNoFaceDetected) && ctx.Err() == nil {
		emb, err = r.Provider.Embed(ctx, image)
	}
	return emb, err
}
