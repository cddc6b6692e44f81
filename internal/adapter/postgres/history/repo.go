// Package history implements the append-only entity history repository
// using PostgreSQL. Rows are only ever inserted; there is no update or
// delete path.
package history

import (
	"context"
	"encoding/json"
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

// Repo provides entity history persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new history repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const historyColumns = `
	id, entity_type, entity_id, action, actor_id, actor_name,
	details, origin_address, client_agent, digest, created_at`

// Append inserts one history entry.
func (r *Repo) Append(ctx context.Context, entry domain.HistoryEntry) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("history_entry marshal details: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO entity_history (
			id, entity_type, entity_id, action, actor_id, actor_name,
			details, origin_address, client_agent, digest, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, string(entry.EntityType), entry.EntityID, entry.Action,
		entry.ActorID, entry.ActorName,
		detailsJSON, entry.OriginAddress, entry.ClientAgent,
		entry.Digest, entry.CreatedAt,
	)
	if err != nil {
		return mapError(err, "history_entry", entry.ID)
	}
	return nil
}

// ListByEntity returns the history for one entity, newest first.
func (r *Repo) ListByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, limit int) ([]domain.HistoryEntry, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := q.Query(ctx, `
		SELECT`+historyColumns+`
		FROM entity_history
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`,
		string(entityType), entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history for %s %s: %w", entityType, entityID, err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history for %s %s: %w", entityType, entityID, err)
	}
	return entries, nil
}

// CountByEntity returns the number of history entries for one entity.
func (r *Repo) CountByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) (int, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)

	var count int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM entity_history WHERE entity_type = $1 AND entity_id = $2`,
		string(entityType), entityID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count history for %s %s: %w", entityType, entityID, err)
	}
	return count, nil
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

func scanEntry(rows pgx.Rows) (domain.HistoryEntry, error) {
	var (
		entry       domain.HistoryEntry
		entityType  string
		detailsJSON []byte
		createdAt   time.Time
	)
	err := rows.Scan(
		&entry.ID, &entityType, &entry.EntityID, &entry.Action,
		&entry.ActorID, &entry.ActorName,
		&detailsJSON, &entry.OriginAddress, &entry.ClientAgent,
		&entry.Digest, &createdAt,
	)
	if err != nil {
		return domain.HistoryEntry{}, err
	}

	entry.EntityType = domain.EntityType(entityType)
	entry.CreatedAt = createdAt

	if len(detailsJSON) > 0 {
		details := make(map[string]any)
		if err := json.Unmarshal(detailsJSON, &details); err != nil {
			return domain.HistoryEntry{}, fmt.Errorf("history_entry %s unmarshal details: %w", entry.ID, err)
		}
		entry.Details = details
	}

	return entry, nil
}
