package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = Config{
	ClosedThreshold: 0.25,
	OpenThreshold:   0.30,
	ClosedFrames:    2,
	ReopenWindow:    15,
	BaselineFrames:  3,
	Deadline:        15 * time.Second,
}

const (
	eyesOpen   = 0.5
	eyesClosed = 0.1
)

// feed pushes a sequence of frames one second apart and returns the
// final state.
func feed(d *Detector, start time.Time, frames ...float64) State {
	state := d.State()
	for i, f := range frames {
		state = d.Observe(f, start.Add(time.Duration(i)*time.Second))
	}
	return state
}

func Test_Detector_ConfirmsBlink(t *testing.T) {
	start := time.Now()
	d := NewDetector(testCfg, start)

	state := feed(d, start,
		eyesOpen, eyesOpen, eyesOpen, // baseline
		eyesClosed, eyesClosed, // closure
		eyesOpen, // reopen
	)

	assert.Equal(t, StateConfirmed, state)
	assert.True(t, d.Confirmed())
}

func Test_Detector_NeverClosedNeverConfirms(t *testing.T) {
	start := time.Now()
	d := NewDetector(testCfg, start)

	for i := 0; i < 10; i++ {
		d.Observe(eyesOpen, start.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, StateAwaitingClose, d.State())
	assert.False(t, d.Confirmed())
}

func Test_Detector_BaselineRequiresConsecutiveOpenFrames(t *testing.T) {
	start := time.Now()
	d := NewDetector(testCfg, start)

	// Closed frames keep resetting the baseline streak.
	state := feed(d, start, eyesOpen, eyesOpen, eyesClosed, eyesOpen, eyesOpen)
	assert.Equal(t, StateAwaitingBaseline, state)

	state = d.Observe(eyesOpen, start.Add(6*time.Second))
	assert.Equal(t, StateAwaitingClose, state)
}

func Test_Detector_SingleFrameDipIsDebounced(t *testing.T) {
	start := time.Now()
	d := NewDetector(testCfg, start)

	state := feed(d, start,
		eyesOpen, eyesOpen, eyesOpen,
		eyesClosed, // one closed frame, below ClosedFrames
		eyesOpen,
	)

	// The dip never counted as a closure, so the reopen confirms nothing.
	assert.Equal(t, StateAwaitingClose, state)
}

func Test_Detector_IntermediateOpennessIsNeitherOpenNorClosed(t *testing.T) {
	start := time.Now()
	d := NewDetector(testCfg, start)
	feed(d, start, eyesOpen, eyesOpen, eyesOpen)
	require.Equal(t, StateAwaitingClose, d.State())

	// Between the two thresholds: breaks the closed streak without
	// counting as open.
	state := feed(d, start.Add(3*time.Second), eyesClosed, 0.27, eyesClosed, eyesClosed, eyesOpen)
	assert.Equal(t, StateConfirmed, state)
}

func Test_Detector_ReopenWindowExpiresBackToAwaitingClose(t *testing.T) {
	cfg := testCfg
	cfg.ReopenWindow = 3
	start := time.Now()
	d := NewDetector(cfg, start)

	feed(d, start, eyesOpen, eyesOpen, eyesOpen, eyesClosed, eyesClosed)
	require.Equal(t, StateAwaitingReopen, d.State())

	// Eyes stay down past the window: occlusion, not a blink.
	state := feed(d, start.Add(5*time.Second), eyesClosed, eyesClosed, eyesClosed)
	assert.Equal(t, StateAwaitingClose, state)

	// A real blink afterwards still confirms.
	state = feed(d, start.Add(8*time.Second), eyesClosed, eyesClosed, eyesOpen)
	assert.Equal(t, StateConfirmed, state)
}

func Test_Detector_DeadlineTimesOut(t *testing.T) {
	start := time.Now()
	d := NewDetector(testCfg, start)

	state := d.Observe(eyesOpen, start.Add(testCfg.Deadline+time.Second))
	assert.Equal(t, StateTimedOut, state)
	assert.True(t, state.Terminal())
}

func Test_Detector_TerminalStatesIgnoreFrames(t *testing.T) {
	start := time.Now()
	d := NewDetector(testCfg, start)

	feed(d, start, eyesOpen, eyesOpen, eyesOpen, eyesClosed, eyesClosed, eyesOpen)
	require.Equal(t, StateConfirmed, d.State())

	// Even a frame past the deadline cannot demote a confirmed session.
	state := d.Observe(eyesClosed, start.Add(time.Hour))
	assert.Equal(t, StateConfirmed, state)
}

func Test_Detector_HistoryBounded(t *testing.T) {
	start := time.Now()
	cfg := testCfg
	cfg.Deadline = time.Hour
	d := NewDetector(cfg, start)

	for i := 0; i < historySize+10; i++ {
		d.Observe(eyesOpen, start.Add(time.Duration(i)*time.Second))
	}

	assert.Len(t, d.History(), historySize)
}

func Test_State_Strings(t *testing.T) {
	assert.Equal(t, "awaiting_baseline", StateAwaitingBaseline.String())
	assert.Equal(t, "awaiting_close", StateAwaitingClose.String())
	assert.Equal(t, "awaiting_reopen", StateAwaitingReopen.String())
	assert.Equal(t, "confirmed", StateConfirmed.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
}
