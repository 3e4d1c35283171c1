package verify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceauth/internal/capture"
	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/internal/liveness"
	"github.com/your-org/faceauth/internal/matcher"
	"github.com/your-org/faceauth/internal/models"
	"github.com/your-org/faceauth/internal/observability"
)

// fakeSource is an in-memory template source.
type fakeSource struct {
	dim       int
	templates []struct {
		id        uuid.UUID
		name      string
		embedding []float32
	}
}

func (s *fakeSource) AllTemplates(ctx context.Context, fn func(uuid.UUID, string, []float32) error) error {
	for _, t := range s.templates {
		if err := fn(t.id, t.name, t.embedding); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSource) Dimension() int { return s.dim }

func (s *fakeSource) add(id uuid.UUID, name string, embedding []float32) {
	s.templates = append(s.templates, struct {
		id        uuid.UUID
		name      string
		embedding []float32
	}{id, name, embedding})
}

// fakeProvider maps image bytes to canned embeddings and eye-openness
// values. Openness is read per frame from the frame's first byte scaled
// down, so tests script a blink as a byte sequence.
type fakeProvider struct {
	dim        int
	embeddings map[string][]float32
}

func (p *fakeProvider) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if emb, ok := p.embeddings[string(image)]; ok {
		return emb, nil
	}
	return nil, errs.New(errs.CodeNoFaceDetected, "no face detected")
}

func (p *fakeProvider) EyeOpenness(ctx context.Context, image []byte) (float64, error) {
	if len(image) == 0 {
		return 0, errs.New(errs.CodeNoFaceDetected, "no face detected")
	}
	return float64(image[0]) / 100, nil
}

func (p *fakeProvider) Dimension() int { return p.dim }

type recordingPublisher struct {
	outcomes []string
}

func (r *recordingPublisher) PublishEvent(ctx context.Context, outcome string, data interface{}) error {
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

var livenessCfg = liveness.Config{
	ClosedThreshold: 0.25,
	OpenThreshold:   0.30,
	ClosedFrames:    2,
	ReopenWindow:    15,
	BaselineFrames:  3,
	Deadline:        15 * time.Second,
}

// openFrame and closedFrame map through fakeProvider.EyeOpenness to 0.5
// and 0.1 respectively.
var (
	openFrame   = []byte{50}
	closedFrame = []byte{10}
)

func newFixture(livenessEnabled bool) (*Service, *fakeSource, *fakeProvider, *recordingPublisher) {
	src := &fakeSource{dim: 3}
	provider := &fakeProvider{dim: 3, embeddings: map[string][]float32{
		string(openFrame): {1, 0, 0},
	}}
	events := &recordingPublisher{}
	svc := NewService(matcher.New(src, 0.25), provider, capture.NewGuard(), events, Config{
		LivenessEnabled: livenessEnabled,
		Liveness:        livenessCfg,
		Timeout:         time.Minute,
	})
	return svc, src, provider, events
}

func Test_VerifyImage_Match(t *testing.T) {
	svc, src, _, events := newFixture(false)
	alice := uuid.New()
	src.add(alice, "alice", []float32{1, 0, 0})

	result, err := svc.VerifyImage(context.Background(), uuid.New(), openFrame)
	require.NoError(t, err)

	assert.True(t, result.Matched)
	require.NotNil(t, result.IdentityID)
	assert.Equal(t, alice, *result.IdentityID)
	assert.Equal(t, []string{models.OutcomeVerified}, events.outcomes)
}

func Test_VerifyImage_Denied(t *testing.T) {
	svc, src, provider, events := newFixture(false)
	src.add(uuid.New(), "alice", []float32{0, 1, 0})
	provider.embeddings["stranger"] = []float32{1, 0, 0}

	result, err := svc.VerifyImage(context.Background(), uuid.New(), []byte("stranger"))
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.Nil(t, result.IdentityID)
	assert.Equal(t, []string{models.OutcomeDenied}, events.outcomes)
}

func Test_VerifyImage_RejectedWhenLivenessEnabled(t *testing.T) {
	svc, src, _, _ := newFixture(true)
	src.add(uuid.New(), "alice", []float32{1, 0, 0})

	_, err := svc.VerifyImage(context.Background(), uuid.New(), openFrame)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeValidation))
}

func Test_VerifyImage_NoFace(t *testing.T) {
	svc, _, _, events := newFixture(false)

	_, err := svc.VerifyImage(context.Background(), uuid.New(), []byte("garbage"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNoFaceDetected))
	assert.Empty(t, events.outcomes)
}

func Test_Session_BlinkThenMatch(t *testing.T) {
	svc, src, _, events := newFixture(true)
	alice := uuid.New()
	src.add(alice, "alice", []float32{1, 0, 0})
	account := uuid.New()

	info, err := svc.StartSession(context.Background(), account)
	require.NoError(t, err)

	frames := [][]byte{openFrame, openFrame, openFrame, closedFrame, closedFrame}
	for _, frame := range frames {
		result, err := svc.SubmitFrame(context.Background(), account, info.ID, frame)
		require.NoError(t, err)
		assert.Empty(t, result.Outcome)
		assert.Nil(t, result.Match)
	}

	result, err := svc.SubmitFrame(context.Background(), account, info.ID, openFrame)
	require.NoError(t, err)

	assert.Equal(t, liveness.StateConfirmed, result.State)
	assert.Equal(t, models.OutcomeVerified, result.Outcome)
	require.NotNil(t, result.Match)
	assert.True(t, result.Match.Matched)
	assert.Equal(t, alice, *result.Match.IdentityID)
	assert.Equal(t, []string{models.OutcomeVerified}, events.outcomes)

	// The session is finished; the device is free again.
	_, err = svc.StartSession(context.Background(), account)
	require.NoError(t, err)
}

func Test_Session_CaptureExclusive(t *testing.T) {
	svc, _, _, _ := newFixture(true)

	_, err := svc.StartSession(context.Background(), uuid.New())
	require.NoError(t, err)

	_, err = svc.StartSession(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCaptureBusy))
}

func Test_Session_CancelReleasesDevice(t *testing.T) {
	svc, _, _, _ := newFixture(true)
	account := uuid.New()

	info, err := svc.StartSession(context.Background(), account)
	require.NoError(t, err)

	require.NoError(t, svc.CancelSession(account, info.ID))

	_, err = svc.StartSession(context.Background(), account)
	require.NoError(t, err)

	// The cancelled session is gone.
	_, err = svc.SubmitFrame(context.Background(), account, info.ID, openFrame)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func Test_Session_NotVisibleToOtherAccounts(t *testing.T) {
	svc, _, _, _ := newFixture(true)
	account := uuid.New()

	info, err := svc.StartSession(context.Background(), account)
	require.NoError(t, err)

	_, err = svc.SubmitFrame(context.Background(), uuid.New(), info.ID, openFrame)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNotFound))
}

func Test_Session_LivenessTimeoutIsItsOwnOutcome(t *testing.T) {
	src := &fakeSource{dim: 3}
	provider := &fakeProvider{dim: 3, embeddings: map[string][]float32{
		string(openFrame): {1, 0, 0},
	}}
	events := &recordingPublisher{}

	cfg := livenessCfg
	cfg.Deadline = -time.Second // already elapsed when the first frame lands
	svc := NewService(matcher.New(src, 0.25), provider, capture.NewGuard(), events, Config{
		LivenessEnabled: true,
		Liveness:        cfg,
		Timeout:         time.Minute,
	})

	account := uuid.New()
	info, err := svc.StartSession(context.Background(), account)
	require.NoError(t, err)

	result, err := svc.SubmitFrame(context.Background(), account, info.ID, openFrame)
	require.NoError(t, err)

	assert.Equal(t, liveness.StateTimedOut, result.State)
	assert.Equal(t, models.OutcomeLivenessFail, result.Outcome)
	assert.Nil(t, result.Match)
	assert.Equal(t, []string{models.OutcomeLivenessFail}, events.outcomes)

	// The device is released on timeout.
	_, err = svc.StartSession(context.Background(), account)
	require.NoError(t, err)
}

func Test_StartSession_PurgesAbandonedSessions(t *testing.T) {
	src := &fakeSource{dim: 3}
	provider := &fakeProvider{dim: 3, embeddings: map[string][]float32{
		string(openFrame): {1, 0, 0},
	}}
	events := &recordingPublisher{}
	svc := NewService(matcher.New(src, 0.25), provider, capture.NewGuard(), events, Config{
		LivenessEnabled: true,
		Liveness:        livenessCfg,
		Timeout:         -time.Second, // expired the moment it starts
	})

	account := uuid.New()
	abandoned, err := svc.StartSession(context.Background(), account)
	require.NoError(t, err)

	// No frames ever arrive. The next start sweeps the dead session out
	// and records its timeout.
	_, err = svc.StartSession(context.Background(), account)
	require.NoError(t, err)

	_, err = svc.SubmitFrame(context.Background(), account, abandoned.ID, openFrame)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNotFound))
	assert.Contains(t, events.outcomes, models.OutcomeLivenessFail)
}

func Test_Session_ConfirmedCountedOncePerSession(t *testing.T) {
	svc, src, _, _ := newFixture(true)
	src.add(uuid.New(), "alice", []float32{1, 0, 0})
	account := uuid.New()

	info, err := svc.StartSession(context.Background(), account)
	require.NoError(t, err)

	before := testutil.ToFloat64(observability.LivenessSessions.WithLabelValues("confirmed"))

	frames := [][]byte{openFrame, openFrame, openFrame, closedFrame, closedFrame}
	for _, frame := range frames {
		_, err := svc.SubmitFrame(context.Background(), account, info.ID, frame)
		require.NoError(t, err)
	}

	// The confirming frame reads as an open eye but yields no usable
	// embedding, so the decision is retried on the next frame.
	blurryOpen := []byte{50, 1}
	result, err := svc.SubmitFrame(context.Background(), account, info.ID, blurryOpen)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, liveness.StateConfirmed, result.State)

	result, err = svc.SubmitFrame(context.Background(), account, info.ID, openFrame)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeVerified, result.Outcome)

	after := testutil.ToFloat64(observability.LivenessSessions.WithLabelValues("confirmed"))
	assert.Equal(t, 1.0, after-before)
}

func Test_Session_BadFrameDoesNotKillSession(t *testing.T) {
	svc, src, _, _ := newFixture(true)
	src.add(uuid.New(), "alice", []float32{1, 0, 0})
	account := uuid.New()

	info, err := svc.StartSession(context.Background(), account)
	require.NoError(t, err)

	result, err := svc.SubmitFrame(context.Background(), account, info.ID, nil)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNoFaceDetected))
	require.NotNil(t, result)

	// The session keeps going with good frames.
	frames := [][]byte{openFrame, openFrame, openFrame, closedFrame, closedFrame, openFrame}
	var last *FrameResult
	for _, frame := range frames {
		last, err = svc.SubmitFrame(context.Background(), account, info.ID, frame)
		require.NoError(t, err)
	}
	assert.Equal(t, liveness.StateConfirmed, last.State)
}
