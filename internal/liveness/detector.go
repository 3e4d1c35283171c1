// Package liveness confirms a live subject by watching for a genuine
// blink in a stream of eye-openness measurements.
package liveness

import "time"

// State of a blink detection session.
type State int

const (
	// StateAwaitingBaseline: waiting for enough open-eye frames to
	// establish that the subject's eyes are visibly open.
	StateAwaitingBaseline State = iota
	// StateAwaitingClose: baseline set, waiting for the eyes to close.
	StateAwaitingClose
	// StateAwaitingReopen: eyes closed long enough, waiting for them to
	// reopen within the reopen window.
	StateAwaitingReopen
	// StateConfirmed: a full close-and-reopen blink was observed. Terminal.
	StateConfirmed
	// StateTimedOut: the deadline elapsed before a blink. Terminal.
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateAwaitingBaseline:
		return "awaiting_baseline"
	case StateAwaitingClose:
		return "awaiting_close"
	case StateAwaitingReopen:
		return "awaiting_reopen"
	case StateConfirmed:
		return "confirmed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateTimedOut
}

// Config tunes the state machine. Open and closed thresholds apply to
// the per-frame eye-openness scalar (eye-aspect-ratio or equivalent);
// OpenThreshold >= ClosedThreshold gives hysteresis against flicker.
type Config struct {
	ClosedThreshold float64
	OpenThreshold   float64
	// ClosedFrames is the number of consecutive below-threshold frames
	// required before a closure counts. Debounces single-frame dips.
	ClosedFrames int
	// ReopenWindow is the number of frames allowed between a confirmed
	// closure and the reopen before the attempt resets.
	ReopenWindow int
	// BaselineFrames is the number of consecutive open frames required
	// before the detector starts looking for a blink.
	BaselineFrames int
	Deadline       time.Duration
}

const historySize = 30

// Detector is a per-attempt blink state machine. It is not safe for
// concurrent use; each verification attempt owns its own detector.
type Detector struct {
	cfg      Config
	state    State
	deadline time.Time

	history      []float64 // bounded ring of recent measurements
	openStreak   int
	closedStreak int
	reopenLeft   int
}

// NewDetector starts a session whose deadline is measured from now.
func NewDetector(cfg Config, now time.Time) *Detector {
	return &Detector{
		cfg:      cfg,
		state:    StateAwaitingBaseline,
		deadline: now.Add(cfg.Deadline),
		history:  make([]float64, 0, historySize),
	}
}

func (d *Detector) State() State        { return d.state }
func (d *Detector) Confirmed() bool     { return d.state == StateConfirmed }
func (d *Detector) Deadline() time.Time { return d.deadline }

// History returns the retained measurement window, oldest first.
func (d *Detector) History() []float64 {
	out := make([]float64, len(d.history))
	copy(out, d.history)
	return out
}

// Observe feeds one frame's eye-openness measurement and returns the
// state after the transition. Frames arriving after a terminal state
// are ignored.
func (d *Detector) Observe(openness float64, now time.Time) State {
	if d.state.Terminal() {
		return d.state
	}
	if now.After(d.deadline) {
		d.state = StateTimedOut
		return d.state
	}

	if len(d.history) == historySize {
		copy(d.history, d.history[1:])
		d.history = d.history[:historySize-1]
	}
	d.history = append(d.history, openness)

	open := openness >= d.cfg.OpenThreshold
	closed := openness < d.cfg.ClosedThreshold

	switch d.state {
	case StateAwaitingBaseline:
		if open {
			d.openStreak++
			if d.openStreak >= d.cfg.BaselineFrames {
				d.state = StateAwaitingClose
				d.closedStreak = 0
			}
		} else {
			d.openStreak = 0
		}

	case StateAwaitingClose:
		if closed {
			d.closedStreak++
			if d.closedStreak >= d.cfg.ClosedFrames {
				d.state = StateAwaitingReopen
				d.reopenLeft = d.cfg.ReopenWindow
			}
		} else {
			d.closedStreak = 0
		}

	case StateAwaitingReopen:
		if open {
			d.state = StateConfirmed
			return d.state
		}
		d.reopenLeft--
		if d.reopenLeft <= 0 {
			// Eyes never came back up; treat it as occlusion rather
			// than a blink and wait for the next closure.
			d.state = StateAwaitingClose
			d.closedStreak = 0
		}
	}

	return d.state
}
