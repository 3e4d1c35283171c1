package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceauth/internal/config"
	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/internal/models"
)

// enrollLockKey serializes enrollment commits across all connections.
// Holding it between the duplicate check and the template insert keeps
// two concurrent enrollments of the same face from both passing the gate.
const enrollLockKey = 0x6661636561757468 // "faceauth"

type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(cfg config.DatabaseConfig, embeddingDim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, dim: embeddingDim}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Dimension returns the fixed embedding dimensionality of the store.
func (s *PostgresStore) Dimension() int {
	return s.dim
}

// EnsureSchema creates the tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS identities (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS face_templates (
			id UUID PRIMARY KEY,
			identity_id UUID NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			source_key TEXT NOT NULL DEFAULT '',
			captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dim),
		`CREATE TABLE IF NOT EXISTS verify_events (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL,
			outcome TEXT NOT NULL,
			identity_id UUID,
			distance DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errs.Wrap(errs.CodeStorage, "ensure schema", err)
		}
	}
	return nil
}

// --- Identities ---

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM identities WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.Name, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.CodeStorage, "get identity", err)
	}
	return ident, nil
}

// ListIdentities returns all identities in enrollment order.
func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at FROM identities ORDER BY created_at, id`)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorage, "list identities", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		var ident models.Identity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.CodeStorage, "scan identity", err)
		}
		identities = append(identities, ident)
	}
	return identities, rows.Err()
}

// DeleteIdentity removes an identity; its templates cascade.
func (s *PostgresStore) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return errs.Wrap(errs.CodeStorage, "delete identity", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.CodeNotFound, "identity not found")
	}
	return nil
}

// --- Face templates ---

// CommitEnrollment writes an identity (if new) and one template in a
// single transaction. precheck runs after the enrollment lock is taken,
// so the duplicate gate it performs sees a settled store. The commit is
// all-or-nothing: a failure leaves neither identity nor template behind.
func (s *PostgresStore) CommitEnrollment(
	ctx context.Context,
	identity models.Identity,
	pending models.FaceTemplate,
	precheck func(context.Context) error,
) (*models.FaceTemplate, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorage, "begin enrollment", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(enrollLockKey)); err != nil {
		return nil, errs.Wrap(errs.CodeStorage, "acquire enrollment lock", err)
	}

	if precheck != nil {
		if err := precheck(ctx); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO identities (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		identity.ID, identity.Name)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorage, "upsert identity", err)
	}

	// The caller names the template up front; its ID is referenced by the
	// archive object key, so it cannot be minted here.
	tmpl := &pending
	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}
	tmpl.IdentityID = identity.ID
	err = tx.QueryRow(ctx,
		`INSERT INTO face_templates (id, identity_id, embedding, source_key)
		 VALUES ($1, $2, $3, $4) RETURNING captured_at`,
		tmpl.ID, tmpl.IdentityID, pgvector.NewVector(tmpl.Embedding), tmpl.SourceKey,
	).Scan(&tmpl.CapturedAt)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorage, "insert template", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errs.Wrap(errs.CodeStorage, "commit enrollment", err)
	}
	return tmpl, nil
}

// ListTemplates returns the templates of one identity in capture order.
func (s *PostgresStore) ListTemplates(ctx context.Context, identityID uuid.UUID) ([]models.FaceTemplate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, embedding, source_key, captured_at
		 FROM face_templates WHERE identity_id = $1 ORDER BY captured_at, id`,
		identityID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorage, "list templates", err)
	}
	defer rows.Close()

	var templates []models.FaceTemplate
	for rows.Next() {
		var tmpl models.FaceTemplate
		var vec pgvector.Vector
		if err := rows.Scan(&tmpl.ID, &tmpl.IdentityID, &vec, &tmpl.SourceKey, &tmpl.CapturedAt); err != nil {
			return nil, errs.Wrap(errs.CodeStorage, "scan template", err)
		}
		tmpl.Embedding = vec.Slice()
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

func (s *PostgresStore) CountTemplates(ctx context.Context, identityID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_templates WHERE identity_id = $1`, identityID,
	).Scan(&count)
	if err != nil {
		return 0, errs.Wrap(errs.CodeStorage, "count templates", err)
	}
	return count, nil
}

// AllTemplates streams every stored template to fn in a fixed order
// (capture time, then id). Each call runs a fresh query, so iteration
// is restartable and sees a consistent snapshot.
func (s *PostgresStore) AllTemplates(ctx context.Context, fn func(identityID uuid.UUID, name string, embedding []float32) error) error {
	rows, err := s.pool.Query(ctx,
		`SELECT ft.identity_id, i.name, ft.embedding
		 FROM face_templates ft
		 JOIN identities i ON i.id = ft.identity_id
		 ORDER BY ft.captured_at, ft.id`)
	if err != nil {
		return errs.Wrap(errs.CodeStorage, "scan templates", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identityID uuid.UUID
		var name string
		var vec pgvector.Vector
		if err := rows.Scan(&identityID, &name, &vec); err != nil {
			return errs.Wrap(errs.CodeStorage, "scan template row", err)
		}
		if err := fn(identityID, name, vec.Slice()); err != nil {
			return err
		}
	}
	return rows.Err()
}

// --- Accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, email, name, passwordHash string) (*models.Account, error) {
	acc := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (id, email, name, password_hash) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO NOTHING RETURNING created_at`,
		acc.ID, acc.Email, acc.Name, acc.PasswordHash,
	).Scan(&acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.CodeValidation, "email already registered")
		}
		return nil, errs.Wrap(errs.CodeStorage, "create account", err)
	}
	return acc, nil
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	acc := &models.Account{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at FROM accounts WHERE email = $1`, email,
	).Scan(&acc.ID, &acc.Email, &acc.Name, &acc.PasswordHash, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.CodeStorage, "get account by email", err)
	}
	return acc, nil
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	acc := &models.Account{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at FROM accounts WHERE id = $1`, id,
	).Scan(&acc.ID, &acc.Email, &acc.Name, &acc.PasswordHash, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.CodeStorage, "get account by id", err)
	}
	return acc, nil
}

// --- Audit events ---

func (s *PostgresStore) InsertVerifyEvent(ctx context.Context, ev *models.VerifyEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verify_events (id, account_id, outcome, identity_id, distance, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.AccountID, ev.Outcome, ev.IdentityID, ev.Distance, ev.Confidence, ev.CreatedAt)
	if err != nil {
		return errs.Wrap(errs.CodeStorage, "insert verify event", err)
	}
	return nil
}

func (s *PostgresStore) ListVerifyEvents(ctx context.Context, limit int) ([]models.VerifyEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, outcome, identity_id, distance, confidence, created_at
		 FROM verify_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorage, "list verify events", err)
	}
	defer rows.Close()

	var events []models.VerifyEvent
	for rows.Next() {
		var ev models.VerifyEvent
		if err := rows.Scan(&ev.ID, &ev.AccountID, &ev.Outcome, &ev.IdentityID,
			&ev.Distance, &ev.Confidence, &ev.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.CodeStorage, "scan verify event", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Stats summarises the store for the /v1/stats endpoint.
type Stats struct {
	Identities int `json:"identities"`
	Templates  int `json:"templates"`
	Accounts   int `json:"accounts"`
	Events     int `json:"events"`
}

func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM identities),
			(SELECT COUNT(*) FROM face_templates),
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM verify_events)`,
	).Scan(&st.Identities, &st.Templates, &st.Accounts, &st.Events)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStorage, "get stats", err)
	}
	return st, nil
}
