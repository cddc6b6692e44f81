// Package lifecycle is the only component permitted to change a document's
// status. Every transition runs the same pipeline: load, table check,
// authorization check, conditional persistence, synchronous audit write,
// then side effects (response draft, notification fan-out).
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailroomhq/mailroom-backend/internal/audit"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
	"github.com/mailroomhq/mailroom-backend/internal/notify"
)

// allocateAttempts bounds the allocate-insert retry loop. Exhaustion is a
// creation failure, never a silent duplicate.
const allocateAttempts = 5

type documentRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	Create(ctx context.Context, doc *domain.Document) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, upd domain.StatusUpdate) (int64, error)
	SetResponseOutgoing(ctx context.Context, id, outgoingID uuid.UUID) (int64, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error)
}

type outgoingRepo interface {
	Create(ctx context.Context, draft *domain.OutgoingDraft) (*domain.OutgoingDraft, error)
}

type auditRecorder interface {
	Record(ctx context.Context, input audit.RecordInput) (domain.HistoryEntry, error)
}

type allocator interface {
	Next(ctx context.Context, prefix, period string) (string, error)
}

type notifier interface {
	NotifyStatusChange(ctx context.Context, change notify.StatusChange) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates the document lifecycle.
type Service struct {
	documents documentRepo
	outgoing  outgoingRepo
	history   auditRecorder
	seq       allocator
	refs      allocator
	outRefs   allocator
	notifier  notifier
	tx        txManager
	log       *slog.Logger
	now       func() time.Time

	// notifyTimeout bounds the detached fan-out goroutine.
	notifyTimeout time.Duration
}

// NewService creates the lifecycle service. seq allocates acquisition
// numbers, refs unique references for incoming documents, outRefs unique
// references for auto-created outgoing drafts.
func NewService(
	log *slog.Logger,
	documents documentRepo,
	outgoing outgoingRepo,
	history auditRecorder,
	seq allocator,
	refs allocator,
	outRefs allocator,
	notifier notifier,
	tx txManager,
) *Service {
	return &Service{
		documents:     documents,
		outgoing:      outgoing,
		history:       history,
		seq:           seq,
		refs:          refs,
		outRefs:       outRefs,
		notifier:      notifier,
		tx:            tx,
		log:           log.With("service", "lifecycle"),
		now:           time.Now,
		notifyTimeout: 10 * time.Second,
	}
}

// GetDocument returns one document by id.
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	return s.documents.GetByID(ctx, id)
}

// ListDocuments returns documents matching the filter plus the total count.
func (s *Service) ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	return s.documents.List(ctx, filter)
}
