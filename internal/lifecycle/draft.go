package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mailroomhq/mailroom-backend/internal/audit"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
	"github.com/mailroomhq/mailroom-backend/internal/metrics"
	"github.com/mailroomhq/mailroom-backend/internal/sequence"
)

// createResponseDraft creates the outgoing response stub for a source
// document, at most once. The caller has already checked
// ResponseOutgoingID, but a unique index on the source link backs the
// check: a concurrent creator that loses the race observes
// ErrAlreadyExists and this returns (nil, nil) as a no-op.
func (s *Service) createResponseDraft(ctx context.Context, source *domain.Document, actor domain.Actor, meta domain.RequestMeta) (*domain.OutgoingDraft, error) {
	period := sequence.CurrentPeriod(s.now())

	subject := fmt.Sprintf("Response to %s - %s", source.ReferenceUnique, source.Subject)
	if len(subject) > 250 {
		subject = subject[:250]
	}
	recipient := source.Sender
	if recipient == "" {
		recipient = "Unknown"
	}

	var created *domain.OutgoingDraft

	op := func() error {
		ref, err := s.outRefs.Next(ctx, domain.PrefixOutgoing, period)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("allocate outgoing reference: %w", err))
		}

		draft := &domain.OutgoingDraft{
			ID:               uuid.New(),
			ReferenceUnique:  ref,
			SourceDocumentID: source.ID,
			Recipient:        recipient,
			Subject:          subject,
			Status:           domain.DraftStatusDraft,
			CreatedBy:        &actor.ID,
			CreatedAt:        s.now().UTC(),
		}

		created, err = s.outgoing.Create(ctx, draft)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				metrics.SequenceRetriesTotal.Inc()
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), allocateAttempts-1),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Either reference collisions exhausted the bound or another
			// caller already created the draft for this source.
			if existing := s.draftAlreadyLinked(ctx, source.ID); existing {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: outgoing reference, period %s", domain.ErrSequenceExhausted, period)
		}
		return nil, err
	}

	rows, err := s.documents.SetResponseOutgoing(ctx, source.ID, created.ID)
	if err != nil {
		// The draft exists but the link-back failed: an orphan draft,
		// surfaced loudly rather than silently dropped.
		return nil, fmt.Errorf("link draft %s to document %s: %w", created.ID, source.ID, err)
	}
	if rows == 0 {
		// Another caller linked a draft first; ours is redundant but the
		// unique source index should have prevented this path.
		s.log.WarnContext(ctx, "draft link skipped, response already linked",
			slog.String("document_id", source.ID.String()),
			slog.String("draft_id", created.ID.String()),
		)
		return nil, nil
	}

	if _, err := s.history.Record(ctx, audit.RecordInput{
		EntityType: domain.EntityTypeOutgoing,
		EntityID:   created.ID,
		Action:     "Response draft auto-created",
		ActorID:    &actor.ID,
		ActorName:  actor.Name,
		Details: map[string]any{
			"source_document_id": source.ID.String(),
			"source_reference":   source.ReferenceUnique,
			"reference_unique":   created.ReferenceUnique,
			"status":             string(created.Status),
		},
		Meta: meta,
	}); err != nil {
		return nil, err
	}

	if _, err := s.history.Record(ctx, audit.RecordInput{
		EntityType: domain.EntityTypeDocument,
		EntityID:   source.ID,
		Action:     "Outgoing response auto-created",
		ActorID:    &actor.ID,
		ActorName:  actor.Name,
		Details: map[string]any{
			"response_outgoing_id": created.ID.String(),
			"reference_unique":     created.ReferenceUnique,
		},
		Meta: meta,
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// draftAlreadyLinked re-reads the source document to distinguish "someone
// else created the draft" from a genuine allocation exhaustion.
func (s *Service) draftAlreadyLinked(ctx context.Context, sourceID uuid.UUID) bool {
	doc, err := s.documents.GetByID(ctx, sourceID)
	if err != nil {
		return false
	}
	return doc.ResponseOutgoingID != nil
}
