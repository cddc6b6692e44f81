// Package document implements the document repository using PostgreSQL.
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/mailroomhq/mailroom-backend/internal/adapter/postgres"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

// Repo provides document persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new document repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const documentColumns = `
	id, reference_unique, sequence_number, correlation_uuid,
	subject, sender, status, assigned_service, assigned_to, indexed_by,
	response_required, response_due, response_outgoing_id, response_created_at,
	treatment_started_at, treatment_completed_at,
	comment, return_comment, rejection_reason,
	created_at, updated_at`

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetByID returns a document by primary key.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx, `SELECT`+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err, "document", id)
	}
	return doc, nil
}

// GetByReference returns a document by its unique reference.
func (r *Repo) GetByReference(ctx context.Context, reference string) (*domain.Document, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx, `SELECT`+documentColumns+` FROM documents WHERE reference_unique = $1`, reference)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err, "document", uuid.Nil)
	}
	return doc, nil
}

// List returns documents matching the filter, newest first, plus the total
// count before pagination.
func (r *Repo) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	base := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	where := squirrel.And{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, squirrel.Eq{"status": statuses})
	}
	if filter.AssignedService != nil {
		where = append(where, squirrel.Eq{"assigned_service": *filter.AssignedService})
	}
	if filter.AssignedTo != nil {
		where = append(where, squirrel.Eq{"assigned_to": *filter.AssignedTo})
	}

	countQ := base.Select("COUNT(*)").From("documents")
	listQ := base.Select(
		"id", "reference_unique", "sequence_number", "correlation_uuid",
		"subject", "sender", "status", "assigned_service", "assigned_to", "indexed_by",
		"response_required", "response_due", "response_outgoing_id", "response_created_at",
		"treatment_started_at", "treatment_completed_at",
		"comment", "return_comment", "rejection_reason",
		"created_at", "updated_at",
	).From("documents")

	if len(where) > 0 {
		countQ = countQ.Where(where)
		listQ = listQ.Where(where)
	}

	listQ = listQ.
		OrderBy("created_at DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	listSQL, listArgs, err := listQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	var rows []documentRow
	if err := pgxscan.Select(ctx, q, &rows, listSQL, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	docs := make([]*domain.Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].toDomain()
	}
	return docs, total, nil
}

// LastAllocatedSequence returns the highest sequence_number matching prefix
// and period, or "" when none exists. Zero-padded suffixes make the lexical
// maximum the numeric maximum.
func (r *Repo) LastAllocatedSequence(ctx context.Context, prefix, period string) (string, error) {
	return r.lastAllocated(ctx, "sequence_number", prefix, period)
}

// LastAllocatedReference returns the highest reference_unique matching
// prefix and period, or "" when none exists.
func (r *Repo) LastAllocatedReference(ctx context.Context, prefix, period string) (string, error) {
	return r.lastAllocated(ctx, "reference_unique", prefix, period)
}

func (r *Repo) lastAllocated(ctx context.Context, column, prefix, period string) (string, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	query := fmt.Sprintf(
		`SELECT %s FROM documents WHERE %s LIKE $1 ORDER BY %s DESC LIMIT 1`,
		column, column, column,
	)

	var last string
	err := q.QueryRow(ctx, query, prefix+"-"+period+"-%").Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan max %s: %w", column, err)
	}
	return last, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Create inserts a new document and returns the persisted row.
func (r *Repo) Create(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	row := q.QueryRow(ctx, `
		INSERT INTO documents (
			id, reference_unique, sequence_number, correlation_uuid,
			subject, sender, status,
			response_required, response_due, comment,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING`+documentColumns,
		doc.ID, doc.ReferenceUnique, doc.SequenceNumber, doc.CorrelationUUID,
		doc.Subject, doc.Sender, string(doc.Status),
		doc.ResponseRequired, doc.ResponseDue, doc.Comment,
		doc.CreatedAt, doc.UpdatedAt,
	)

	stored, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err, "document", doc.ID)
	}
	return stored, nil
}

// UpdateStatus applies a status change conditioned on the current status.
// Returns the number of affected rows: zero means the document is no longer
// in the expected status and nothing was written.
func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, upd domain.StatusUpdate) (int64, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	b := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Update("documents").
		Set("status", string(to)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id, "status": string(from)})

	if upd.IndexedBy != nil {
		b = b.Set("indexed_by", *upd.IndexedBy)
	}
	if upd.AssignedService != nil {
		b = b.Set("assigned_service", *upd.AssignedService)
	}
	if upd.AssignedTo != nil {
		b = b.Set("assigned_to", *upd.AssignedTo)
	}
	if upd.TreatmentStartedAt != nil {
		b = b.Set("treatment_started_at", *upd.TreatmentStartedAt)
	}
	if upd.TreatmentCompletedAt != nil {
		b = b.Set("treatment_completed_at", *upd.TreatmentCompletedAt)
	}
	if upd.ClearTreatment {
		b = b.Set("treatment_started_at", nil).Set("treatment_completed_at", nil)
	}
	if upd.Comment != nil {
		b = b.Set("comment", *upd.Comment)
	}
	if upd.ReturnComment != nil {
		b = b.Set("return_comment", *upd.ReturnComment)
	}
	if upd.RejectionReason != nil {
		b = b.Set("rejection_reason", *upd.RejectionReason)
	}

	sql, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build status update: %w", err)
	}

	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, "document", id)
	}
	return tag.RowsAffected(), nil
}

// SetResponseOutgoing links the auto-created outgoing draft to its source
// document. The condition on response_outgoing_id IS NULL makes the link
// first-writer-wins; zero affected rows means a link already exists.
func (r *Repo) SetResponseOutgoing(ctx context.Context, id, outgoingID uuid.UUID) (int64, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	tag, err := q.Exec(ctx, `
		UPDATE documents
		SET response_outgoing_id = $2, response_created_at = now(), updated_at = now()
		WHERE id = $1 AND response_outgoing_id IS NULL`,
		id, outgoingID,
	)
	if err != nil {
		return 0, mapError(err, "document", id)
	}
	return tag.RowsAffected(), nil
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

// documentRow mirrors the documents table for scanning.
type documentRow struct {
	ID              uuid.UUID `db:"id"`
	ReferenceUnique string    `db:"reference_unique"`
	SequenceNumber  string    `db:"sequence_number"`
	CorrelationUUID uuid.UUID `db:"correlation_uuid"`

	Subject string `db:"subject"`
	Sender  string `db:"sender"`

	Status          string  `db:"status"`
	AssignedService *string `db:"assigned_service"`
	AssignedTo      *string `db:"assigned_to"`
	IndexedBy       *string `db:"indexed_by"`

	ResponseRequired   bool       `db:"response_required"`
	ResponseDue        *time.Time `db:"response_due"`
	ResponseOutgoingID *uuid.UUID `db:"response_outgoing_id"`
	ResponseCreatedAt  *time.Time `db:"response_created_at"`

	TreatmentStartedAt   *time.Time `db:"treatment_started_at"`
	TreatmentCompletedAt *time.Time `db:"treatment_completed_at"`

	Comment         *string `db:"comment"`
	ReturnComment   *string `db:"return_comment"`
	RejectionReason *string `db:"rejection_reason"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row documentRow) toDomain() *domain.Document {
	return &domain.Document{
		ID:                   row.ID,
		ReferenceUnique:      row.ReferenceUnique,
		SequenceNumber:       row.SequenceNumber,
		CorrelationUUID:      row.CorrelationUUID,
		Subject:              row.Subject,
		Sender:               row.Sender,
		Status:               domain.Status(row.Status),
		AssignedService:      row.AssignedService,
		AssignedTo:           row.AssignedTo,
		IndexedBy:            row.IndexedBy,
		ResponseRequired:     row.ResponseRequired,
		ResponseDue:          row.ResponseDue,
		ResponseOutgoingID:   row.ResponseOutgoingID,
		ResponseCreatedAt:    row.ResponseCreatedAt,
		TreatmentStartedAt:   row.TreatmentStartedAt,
		TreatmentCompletedAt: row.TreatmentCompletedAt,
		Comment:              row.Comment,
		ReturnComment:        row.ReturnComment,
		RejectionReason:      row.RejectionReason,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
}

// scanDocument scans one row in documentColumns order.
func scanDocument(row pgx.Row) (*domain.Document, error) {
	var r documentRow
	err := row.Scan(
		&r.ID, &r.ReferenceUnique, &r.SequenceNumber, &r.CorrelationUUID,
		&r.Subject, &r.Sender, &r.Status, &r.AssignedService, &r.AssignedTo, &r.IndexedBy,
		&r.ResponseRequired, &r.ResponseDue, &r.ResponseOutgoingID, &r.ResponseCreatedAt,
		&r.TreatmentStartedAt, &r.TreatmentCompletedAt,
		&r.Comment, &r.ReturnComment, &r.RejectionReason,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}
