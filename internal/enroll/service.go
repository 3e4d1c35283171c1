// Package enroll validates and commits new face templates, keeping the
// store free of the same face enrolled under two identities.
package enroll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/internal/matcher"
	"github.com/your-org/faceauth/internal/models"
	"github.com/your-org/faceauth/internal/observability"
)

// Store is the slice of the embedding store enrollment needs.
type Store interface {
	Dimension() int
	GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	CommitEnrollment(ctx context.Context, identity models.Identity, tmpl models.FaceTemplate, precheck func(context.Context) error) (*models.FaceTemplate, error)
}

// ImageSink persists the source image a template was captured from.
type ImageSink interface {
	PutImage(ctx context.Context, key string, data []byte, contentType string) error
}

// EventPublisher receives audit events for committed enrollments. May be
// nil; enrollment never fails because auditing does.
type EventPublisher interface {
	PublishEvent(ctx context.Context, outcome string, data interface{}) error
}

type Service struct {
	store              Store
	matcher            *matcher.Matcher
	images             ImageSink
	events             EventPublisher
	duplicateThreshold float64
}

func New(store Store, m *matcher.Matcher, images ImageSink, events EventPublisher, duplicateThreshold float64) *Service {
	return &Service{
		store:              store,
		matcher:            m,
		images:             images,
		events:             events,
		duplicateThreshold: duplicateThreshold,
	}
}

// Request carries one enrollment. IdentityID is optional; when nil a new
// identity is created. Image may be nil (no source image to archive).
type Request struct {
	// AccountID is the authenticated operator performing the enrollment,
	// recorded on the audit event.
	AccountID  uuid.UUID
	Name       string
	IdentityID *uuid.UUID
	Embedding  []float32
	Image      []byte
	ImageType  string
}

// Enroll commits a new template. For a fresh identity the name must be
// non-empty; adding a sample to an existing identity reuses its name.
// Fails with a DuplicateFace error when the embedding is within the
// duplicate threshold of a different identity's template.
func (s *Service) Enroll(ctx context.Context, req Request) (*models.Identity, *models.FaceTemplate, error) {
	if len(req.Embedding) != s.store.Dimension() {
		observability.Enrollments.WithLabelValues("rejected").Inc()
		return nil, nil, errs.Newf(errs.CodeValidation,
			"embedding has dimension %d, store uses %d", len(req.Embedding), s.store.Dimension())
	}

	identity := models.Identity{Name: strings.TrimSpace(req.Name)}
	if req.IdentityID != nil {
		existing, err := s.getIdentityRetry(ctx, *req.IdentityID)
		if err != nil {
			return nil, nil, err
		}
		if existing == nil {
			observability.Enrollments.WithLabelValues("rejected").Inc()
			return nil, nil, errs.New(errs.CodeNotFound, "identity not found")
		}
		identity = *existing
	} else {
		if identity.Name == "" {
			observability.Enrollments.WithLabelValues("rejected").Inc()
			return nil, nil, errs.New(errs.CodeValidation, "name is required")
		}
		identity.ID = uuid.New()
	}

	precheck := func(ctx context.Context) error {
		best, err := s.matcher.BestMatchAt(ctx, req.Embedding, s.duplicateThreshold)
		if err != nil {
			return err
		}
		if best.IdentityID != nil && best.Distance <= s.duplicateThreshold && *best.IdentityID != identity.ID {
			return errs.Newf(errs.CodeDuplicateFace,
				"face already enrolled as %q (distance %.4f)", best.IdentityName, best.Distance)
		}
		return nil
	}

	// The template ID doubles as the archive object name, so the stored
	// source_key always points back at the row it belongs to.
	pending := models.FaceTemplate{ID: uuid.New(), IdentityID: identity.ID, Embedding: req.Embedding}
	if req.Image != nil {
		pending.SourceKey = fmt.Sprintf("enrolled/%s/%s.jpg", identity.ID, pending.ID)
	}

	tmpl, err := s.commitRetry(ctx, identity, pending, precheck)
	if err != nil {
		if errs.Is(err, errs.CodeDuplicateFace) {
			observability.Enrollments.WithLabelValues("duplicate").Inc()
		} else {
			observability.Enrollments.WithLabelValues("error").Inc()
		}
		return nil, nil, err
	}

	// Archiving the source image is best effort; the template is already
	// durable and must not be rolled back over an object-store hiccup.
	if req.Image != nil && s.images != nil {
		contentType := req.ImageType
		if contentType == "" {
			contentType = "image/jpeg"
		}
		if err := s.images.PutImage(ctx, tmpl.SourceKey, req.Image, contentType); err != nil {
			slog.Warn("archive enrolled image", "key", tmpl.SourceKey, "error", err)
		}
	}

	if s.events != nil {
		ev := &models.VerifyEvent{
			AccountID:  req.AccountID,
			Outcome:    models.OutcomeEnrolled,
			IdentityID: &identity.ID,
			CreatedAt:  tmpl.CapturedAt,
		}
		if err := s.events.PublishEvent(ctx, ev.Outcome, ev); err != nil {
			slog.Warn("publish enrollment event", "identity_id", identity.ID, "error", err)
		}
	}

	observability.Enrollments.WithLabelValues("ok").Inc()
	return &identity, tmpl, nil
}

// commitRetry retries a storage failure once before surfacing it.
func (s *Service) commitRetry(
	ctx context.Context,
	identity models.Identity,
	pending models.FaceTemplate,
	precheck func(context.Context) error,
) (*models.FaceTemplate, error) {
	tmpl, err := s.store.CommitEnrollment(ctx, identity, pending, precheck)
	if err != nil && errs.Is(err, errs.CodeStorage) && ctx.Err() == nil {
		slog.Warn("enrollment commit failed, retrying once", "error", err)
		tmpl, err = s.store.CommitEnrollment(ctx, identity, pending, precheck)
	}
	return tmpl, err
}

func (s *Service) getIdentityRetry(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident, err := s.store.GetIdentity(ctx, id)
	if err != nil && errs.Is(err, errs.CodeStorage) && ctx.Err() == nil {
		ident, err = s.store.GetIdentity(ctx, id)
	}
	return ident, err
}
