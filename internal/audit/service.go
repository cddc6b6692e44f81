// Package audit records immutable history entries for every mutating action
// against a document. Entries carry request provenance and a per-row
// integrity digest; the public contract has no update or delete.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

type historyRepo interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
	ListByEntity(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID, limit int) ([]domain.HistoryEntry, error)
}

// historyPageLimit caps one history read. Lifecycles are short; the cap is
// generous.
const historyPageLimit = 500

// Recorder is the audit trail writer and reader.
type Recorder struct {
	history historyRepo
	log     *slog.Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(log *slog.Logger, history historyRepo) *Recorder {
	return &Recorder{
		history: history,
		log:     log.With("service", "audit"),
		now:     time.Now,
	}
}

// RecordInput describes one action to append to the trail.
type RecordInput struct {
	EntityType domain.EntityType
	EntityID   uuid.UUID
	Action     string
	ActorID    *uuid.UUID
	ActorName  string
	Details    map[string]any
	Meta       domain.RequestMeta
}

// Record appends one history entry. A failure here must fail the enclosing
// operation: the trail is the only durable proof a transition happened with
// the stated actor and time, so errors wrap domain.ErrAuditWriteFailed.
func (r *Recorder) Record(ctx context.Context, input RecordInput) (domain.HistoryEntry, error) {
	if !input.EntityType.IsValid() {
		return domain.HistoryEntry{}, domain.NewValidationError("entity_type", "unknown entity type")
	}
	if input.Action == "" {
		return domain.HistoryEntry{}, domain.NewValidationError("action", "required")
	}

	meta := input.Meta.OrUnknown()
	// TIMESTAMPTZ stores microseconds. The digest must recompute from the
	// stored row, so the timestamp is truncated before it is hashed.
	entry := domain.HistoryEntry{
		ID:            uuid.New(),
		EntityType:    input.EntityType,
		EntityID:      input.EntityID,
		Action:        input.Action,
		ActorID:       input.ActorID,
		ActorName:     input.ActorName,
		Details:       input.Details,
		OriginAddress: meta.OriginAddress,
		ClientAgent:   meta.ClientAgent,
		CreatedAt:     r.now().UTC().Truncate(time.Microsecond),
	}

	digest, err := ComputeDigest(entry)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("%w: %v", domain.ErrAuditWriteFailed, err)
	}
	entry.Digest = digest

	if err := r.history.Append(ctx, entry); err != nil {
		r.log.ErrorContext(ctx, "history append failed",
			slog.String("entity_type", string(entry.EntityType)),
			slog.String("entity_id", entry.EntityID.String()),
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
		return domain.HistoryEntry{}, fmt.Errorf("%w: %v", domain.ErrAuditWriteFailed, err)
	}

	return entry, nil
}

// GetHistory returns every entry for the entity, newest first.
func (r *Recorder) GetHistory(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]domain.HistoryEntry, error) {
	if !entityType.IsValid() {
		return nil, domain.NewValidationError("entity_type", "unknown entity type")
	}

	entries, err := r.history.ListByEntity(ctx, entityType, entityID, historyPageLimit)
	if err != nil {
		return nil, fmt.Errorf("list history %s %s: %w", entityType, entityID, err)
	}
	return entries, nil
}
