// Package verify orchestrates a verification attempt: exclusive capture,
// frame-by-frame liveness, then a match on the confirming frame.
package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceauth/internal/capture"
	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/internal/liveness"
	"github.com/your-org/faceauth/internal/matcher"
	"github.com/your-org/faceauth/internal/models"
	"github.com/your-org/faceauth/internal/observability"
	"github.com/your-org/faceauth/internal/vision"
)

// EventPublisher receives audit events for the decisions this service
// makes. May be nil; decisions never fail because auditing does.
type EventPublisher interface {
	PublishEvent(ctx context.Context, outcome string, data interface{}) error
}

type Config struct {
	LivenessEnabled bool
	Liveness        liveness.Config
	// Timeout bounds a whole verification attempt; it is distinct from
	// the liveness deadline inside it.
	Timeout time.Duration
}

type Service struct {
	matcher  *matcher.Matcher
	provider vision.Provider
	guard    *capture.Guard
	events   EventPublisher
	cfg      Config

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// session is one in-flight live verification attempt, owned exclusively
// by the account that started it.
type session struct {
	id        uuid.UUID
	accountID uuid.UUID
	lease     uuid.UUID
	detector  *liveness.Detector
	deadline  time.Time
	result    *models.MatchResult
	outcome   string
}

func NewService(m *matcher.Matcher, provider vision.Provider, guard *capture.Guard, events EventPublisher, cfg Config) *Service {
	return &Service{
		matcher:  m,
		provider: provider,
		guard:    guard,
		events:   events,
		cfg:      cfg,
		sessions: make(map[uuid.UUID]*session),
	}
}

// VerifyImage runs a single-shot match with no liveness gate. When the
// liveness check is enabled, verification must go through a session so
// a static photo cannot short-circuit the blink requirement.
func (s *Service) VerifyImage(ctx context.Context, accountID uuid.UUID, image []byte) (models.MatchResult, error) {
	if s.cfg.LivenessEnabled {
		return models.MatchResult{}, errs.New(errs.CodeValidation,
			"liveness check is enabled; use a live verification session")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	probe, err := s.provider.Embed(ctx, image)
	if err != nil {
		return models.MatchResult{}, err
	}

	result, err := s.matcher.BestMatch(ctx, probe)
	if err != nil {
		return models.MatchResult{}, err
	}

	s.recordDecision(ctx, accountID, result)
	return result, nil
}

// SessionInfo describes a started session to the caller.
type SessionInfo struct {
	ID               uuid.UUID
	LivenessDeadline time.Time
	Deadline         time.Time
}

// StartSession claims the capture device and opens a live verification
// attempt. Fails fast with a CaptureBusy error while another session
// holds the device.
func (s *Service) StartSession(ctx context.Context, accountID uuid.UUID) (*SessionInfo, error) {
	now := time.Now()
	s.expireStale(ctx, now)
	deadline := now.Add(s.cfg.Timeout)

	lease, err := s.guard.TryAcquire(deadline)
	if err != nil {
		return nil, err
	}

	sess := &session{
		id:        uuid.New(),
		accountID: accountID,
		lease:     lease,
		detector:  liveness.NewDetector(s.cfg.Liveness, now),
		deadline:  deadline,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	slog.Info("verification session started", "session_id", sess.id, "deadline", deadline)
	return &SessionInfo{
		ID:               sess.id,
		LivenessDeadline: sess.detector.Deadline(),
		Deadline:         deadline,
	}, nil
}

// FrameResult reports the session state after one frame. Match is set
// only once liveness is confirmed and the decision has been rendered.
type FrameResult struct {
	State   liveness.State
	Outcome string
	Match   *models.MatchResult
}

// SubmitFrame feeds one captured frame into the session. On the frame
// that confirms the blink, the same frame's embedding is matched and the
// decision returned. A liveness timeout is its own outcome and is never
// reported as a face mismatch.
func (s *Service) SubmitFrame(ctx context.Context, accountID, sessionID uuid.UUID, frame []byte) (*FrameResult, error) {
	sess, err := s.lookup(accountID, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if now.After(sess.deadline) {
		s.finish(ctx, sess, liveness.StateTimedOut)
		return &FrameResult{State: liveness.StateTimedOut, Outcome: models.OutcomeLivenessFail}, nil
	}

	if sess.detector.State().Terminal() {
		if sess.detector.Confirmed() && sess.result == nil {
			// Liveness passed but the earlier confirming frame had no
			// usable face; try to decide on this one.
			return s.concludeConfirmed(ctx, sess, frame)
		}
		// Terminal sessions ignore further frames.
		return &FrameResult{State: sess.detector.State(), Outcome: sess.outcome, Match: sess.result}, nil
	}

	openness, err := s.provider.EyeOpenness(ctx, frame)
	if err != nil {
		// A frame with no usable face does not advance or kill the
		// session; the caller retakes and keeps going.
		if errs.Is(err, errs.CodeNoFaceDetected) || errs.Is(err, errs.CodeMultipleFaces) {
			return &FrameResult{State: sess.detector.State()}, err
		}
		return nil, err
	}

	state := sess.detector.Observe(openness, now)
	switch state {
	case liveness.StateConfirmed:
		// Counted on the transition, not in concludeConfirmed: retries
		// after an unusable confirming frame are the same session.
		observability.LivenessSessions.WithLabelValues("confirmed").Inc()
		return s.concludeConfirmed(ctx, sess, frame)
	case liveness.StateTimedOut:
		s.finish(ctx, sess, liveness.StateTimedOut)
		return &FrameResult{State: state, Outcome: models.OutcomeLivenessFail}, nil
	default:
		return &FrameResult{State: state}, nil
	}
}

// CancelSession abandons an in-progress attempt and releases the
// capture device.
func (s *Service) CancelSession(accountID, sessionID uuid.UUID) error {
	sess, err := s.lookup(accountID, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	s.guard.Release(sess.lease)

	observability.LivenessSessions.WithLabelValues("cancelled").Inc()
	slog.Info("verification session cancelled", "session_id", sessionID)
	return nil
}

func (s *Service) lookup(accountID, sessionID uuid.UUID) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.accountID != accountID {
		return nil, errs.New(errs.CodeNotFound, "verification session not found")
	}
	return sess, nil
}

func (s *Service) concludeConfirmed(ctx context.Context, sess *session, frame []byte) (*FrameResult, error) {
	probe, err := s.provider.Embed(ctx, frame)
	if err != nil {
		// Liveness is confirmed but the confirming frame has no usable
		// face for matching; keep the session open for another frame.
		return &FrameResult{State: liveness.StateConfirmed}, err
	}

	result, err := s.matcher.BestMatch(ctx, probe)
	if err != nil {
		return nil, err
	}

	sess.result = &result
	sess.outcome = s.recordDecision(ctx, sess.accountID, result)

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.guard.Release(sess.lease)

	return &FrameResult{State: liveness.StateConfirmed, Outcome: sess.outcome, Match: &result}, nil
}

func (s *Service) finish(ctx context.Context, sess *session, state liveness.State) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.guard.Release(sess.lease)

	if state == liveness.StateTimedOut {
		s.recordTimeout(ctx, sess)
	}
}

// expireStale sweeps out sessions whose overall deadline has passed
// without a decision. An abandoned session must not hold the capture
// device or a map entry forever.
func (s *Service) expireStale(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var stale []*session
	for id, sess := range s.sessions {
		if now.After(sess.deadline) {
			delete(s.sessions, id)
			stale = append(stale, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		s.guard.Release(sess.lease)
		s.recordTimeout(ctx, sess)
		slog.Info("verification session expired", "session_id", sess.id)
	}
}

func (s *Service) recordTimeout(ctx context.Context, sess *session) {
	sess.outcome = models.OutcomeLivenessFail
	observability.LivenessSessions.WithLabelValues("timed_out").Inc()
	observability.Verifications.WithLabelValues(models.OutcomeLivenessFail).Inc()
	s.publish(ctx, &models.VerifyEvent{
		AccountID: sess.accountID,
		Outcome:   models.OutcomeLivenessFail,
		CreatedAt: time.Now(),
	})
}

// recordDecision maps a match result to an audit outcome, bumps the
// metrics, and publishes the event.
func (s *Service) recordDecision(ctx context.Context, accountID uuid.UUID, result models.MatchResult) string {
	outcome := models.OutcomeDenied
	if result.Matched {
		outcome = models.OutcomeVerified
	} else if result.Ambiguous {
		outcome = models.OutcomeAmbiguous
	}
	observability.Verifications.WithLabelValues(outcome).Inc()

	s.publish(ctx, &models.VerifyEvent{
		AccountID:  accountID,
		Outcome:    outcome,
		IdentityID: result.IdentityID,
		Distance:   result.Distance,
		Confidence: result.Confidence(),
		CreatedAt:  time.Now(),
	})
	return outcome
}

func (s *Service) publish(ctx context.Context, ev *models.VerifyEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, ev.Outcome, ev); err != nil {
		slog.Warn("publish verify event", "outcome", ev.Outcome, "error", err)
	}
}
