// Package outgoing implements the outgoing draft repository using
// PostgreSQL.
package outgoing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/mailroomhq/mailroom-backend/internal/adapter/postgres"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

// Repo provides outgoing draft persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new outgoing draft repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const draftColumns = `
	id, reference_unique, source_document_id, recipient, subject,
	status, created_by, created_at`

// Create inserts a new draft. A unique index on source_document_id makes
// creation per source at-most-once: the second writer gets
// domain.ErrAlreadyExists.
func (r *Repo) Create(ctx context.Context, draft *domain.OutgoingDraft) (*domain.OutgoingDraft, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx, `
		INSERT INTO outgoing_drafts (
			id, reference_unique, source_document_id, recipient, subject,
			status, created_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING`+draftColumns,
		draft.ID, draft.ReferenceUnique, draft.SourceDocumentID,
		draft.Recipient, draft.Subject,
		string(draft.Status), draft.CreatedBy, draft.CreatedAt,
	)

	stored, err := scanDraft(row)
	if err != nil {
		return nil, mapError(err, "outgoing_draft", draft.ID)
	}
	return stored, nil
}

// GetByID returns a draft by primary key.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutgoingDraft, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx, `SELECT`+draftColumns+` FROM outgoing_drafts WHERE id = $1`, id)

	draft, err := scanDraft(row)
	if err != nil {
		return nil, mapError(err, "outgoing_draft", id)
	}
	return draft, nil
}

// GetBySourceDocument returns the draft created for one source document.
func (r *Repo) GetBySourceDocument(ctx context.Context, sourceID uuid.UUID) (*domain.OutgoingDraft, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx, `SELECT`+draftColumns+` FROM outgoing_drafts WHERE source_document_id = $1`, sourceID)

	draft, err := scanDraft(row)
	if err != nil {
		return nil, mapError(err, "outgoing_draft", sourceID)
	}
	return draft, nil
}

// LastAllocatedReference returns the highest reference_unique matching
// prefix and period, or "" when none exists.
func (r *Repo) LastAllocatedReference(ctx context.Context, prefix, period string) (string, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var last string
	err := q.QueryRow(ctx, `
		SELECT reference_unique FROM outgoing_drafts
		WHERE reference_unique LIKE $1
		ORDER BY reference_unique DESC
		LIMIT 1`,
		prefix+"-"+period+"-%",
	).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan max outgoing reference: %w", err)
	}
	return last, nil
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

// mapError converts pgx/pgconn errors into domain errors.
func mapError(err error, entity string, id uuid.UUID) error {
	if err == nil {
		return nil
	}

	// context errors pass through as-is
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}

	// pgx.ErrNoRows -> domain.ErrNotFound
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}

	// PgError codes
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s %s: %w", entity, id, domain.ErrAlreadyExists)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
		case "23514": // check_violation
			return fmt.Errorf("%s %s: %w", entity, id, domain.ErrValidation)
		}
	}

	// Everything else: wrap with context
	return fmt.Errorf("%s %s: %w", entity, id, err)
}

// ---------------------------------------------------------------------------
// Row mapping
// ---------------------------------------------------------------------------

func scanDraft(row pgx.Row) (*domain.OutgoingDraft, error) {
	var (
		draft     domain.OutgoingDraft
		status    string
		createdAt time.Time
	)
	err := row.Scan(
		&draft.ID, &draft.ReferenceUnique, &draft.SourceDocumentID,
		&draft.Recipient, &draft.Subject,
		&status, &draft.CreatedBy, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	draft.Status = domain.DraftStatus(status)
	draft.CreatedAt = createdAt
	return &draft, nil
}
