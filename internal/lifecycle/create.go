package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mailroomhq/mailroom-backend/internal/audit"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
	"github.com/mailroomhq/mailroom-backend/internal/metrics"
	"github.com/mailroomhq/mailroom-backend/internal/sequence"
)

// retryInterval spaces allocation retries; collisions are expected and
// cheap, so the interval stays short.
const retryInterval = 50 * time.Millisecond

// CreateDocument performs the acquisition step: allocates the acquisition
// number and the unique reference, inserts the document at the initial
// status and appends the first history entry, all as one unit of work.
//
// Allocation and insert are not atomic together, so a concurrent creator
// can win the same candidate; the uniqueness constraint rejects the loser,
// which re-allocates and retries up to the bound. Exhaustion fails the
// creation: a document without a valid business number is not a valid
// domain object.
func (s *Service) CreateDocument(ctx context.Context, input CreateDocumentInput) (*domain.Document, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	period := sequence.CurrentPeriod(s.now())
	actorName := input.Actor.Name
	meta := input.Meta.OrUnknown()

	var created *domain.Document
	attempt := 0

	op := func() error {
		attempt++

		seqNum, err := s.seq.Next(ctx, domain.PrefixIncoming, period)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("allocate sequence number: %w", err))
		}
		ref, err := s.refs.Next(ctx, domain.PrefixReference, period)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("allocate reference: %w", err))
		}

		now := s.now().UTC()
		doc := &domain.Document{
			ID:               uuid.New(),
			ReferenceUnique:  ref,
			SequenceNumber:   seqNum,
			CorrelationUUID:  uuid.New(),
			Subject:          strings.TrimSpace(input.Subject),
			Sender:           strings.TrimSpace(input.Sender),
			Status:           domain.StatusAcquired,
			ResponseRequired: input.ResponseRequired,
			ResponseDue:      input.ResponseDue,
			Comment:          input.Comment,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			stored, err := s.documents.Create(txCtx, doc)
			if err != nil {
				return err
			}

			_, err = s.history.Record(txCtx, audit.RecordInput{
				EntityType: domain.EntityTypeDocument,
				EntityID:   stored.ID,
				Action:     "Document acquired",
				ActorID:    &input.Actor.ID,
				ActorName:  actorName,
				Details: map[string]any{
					"reference_unique": stored.ReferenceUnique,
					"sequence_number":  stored.SequenceNumber,
					"status":           string(stored.Status),
				},
				Meta: meta,
			})
			if err != nil {
				return err
			}

			created = stored
			return nil
		})
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				metrics.SequenceRetriesTotal.Inc()
				s.log.WarnContext(ctx, "sequence collision, retrying allocation",
					slog.Int("attempt", attempt),
					slog.String("sequence_number", seqNum),
				)
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
			return nil, fmt.Errorf("%w: %d attempts for period %s", domain.ErrSequenceExhausted, allocateAttempts, period)
		}
		return nil, err
	}

	metrics.DocumentsCreatedTotal.Inc()
	s.log.InfoContext(ctx, "document acquired",
		slog.String("document_id", created.ID.String()),
		slog.String("sequence_number", created.SequenceNumber),
		slog.String("reference_unique", created.ReferenceUnique),
		slog.String("actor", actorName),
	)

	return created, nil
}
