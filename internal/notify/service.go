// Package notify resolves the audience for a document status change and
// emits one notification per recipient. Delivery is best-effort: the
// lifecycle service logs failures and never rolls a transition back for
// them. Each row carries a dedupe key so a retried fan-out cannot notify
// the same recipient twice for the same transition.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

const fanoutConcurrency = 4

type userDirectory interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ListByRoles(ctx context.Context, roles []domain.Role) ([]domain.User, error)
}

type notificationRepo interface {
	Create(ctx context.Context, n domain.Notification) error
}

// Fanout delivers status-change notifications.
type Fanout struct {
	users         userDirectory
	notifications notificationRepo
	log           *slog.Logger
}

// NewFanout creates a Fanout.
func NewFanout(log *slog.Logger, users userDirectory, notifications notificationRepo) *Fanout {
	return &Fanout{
		users:         users,
		notifications: notifications,
		log:           log.With("service", "notify"),
	}
}

// StatusChange describes one completed transition to announce.
type StatusChange struct {
	Document  *domain.Document
	Action    domain.Action
	NewStatus domain.Status
	ActorName string
	HistoryID uuid.UUID
	Comment   string
}

// NotifyStatusChange resolves the audience and writes one notification per
// recipient. Recipients are deduplicated; per-recipient failures are logged
// and do not abort the rest of the fan-out.
func (f *Fanout) NotifyStatusChange(ctx context.Context, change StatusChange) error {
	if change.Document == nil {
		return domain.NewValidationError("document", "required")
	}

	kind, title, message := f.describe(change)

	recipients, err := f.resolveAudience(ctx, change)
	if err != nil {
		return fmt.Errorf("resolve audience: %w", err)
	}
	if len(recipients) == 0 {
		return nil
	}

	doc := change.Document
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutConcurrency)

	for _, user := range recipients {
		g.Go(func() error {
			n := domain.Notification{
				ID:         uuid.New(),
				UserID:     user.ID,
				Type:       kind,
				Title:      title,
				Message:    message,
				DocumentID: &doc.ID,
				DedupeKey:  dedupeKey(doc.ID, change.NewStatus, user.ID, change.HistoryID),
				CreatedAt:  time.Now().UTC(),
			}
			if err := f.notifications.Create(gctx, n); err != nil {
				if errors.Is(err, domain.ErrAlreadyExists) {
					return nil // already delivered for this transition
				}
				f.log.WarnContext(gctx, "notification delivery failed",
					slog.String("document_id", doc.ID.String()),
					slog.String("user_id", user.ID.String()),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}

	return g.Wait()
}

// dedupeKey identifies one (transition, recipient) pair.
func dedupeKey(docID uuid.UUID, status domain.Status, userID uuid.UUID, historyID uuid.UUID) string {
	return fmt.Sprintf("%s|%s|%s|%s", docID, status, userID, historyID)
}

// resolveAudience picks recipients by action and resulting status:
// supervisory roles follow the document through indexing, validation and
// archival; the assignee learns about an assignment; the indexer learns
// about returns and rejections.
func (f *Fanout) resolveAudience(ctx context.Context, change StatusChange) ([]domain.User, error) {
	doc := change.Document
	var audience []domain.User

	addByUsername := func(username *string) error {
		if username == nil || *username == "" {
			return nil
		}
		user, err := f.users.GetByUsername(ctx, *username)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		audience = append(audience, *user)
		return nil
	}

	addSupervisors := func() error {
		users, err := f.users.ListByRoles(ctx, []domain.Role{domain.RoleAdmin, domain.RoleSupervisor})
		if err != nil {
			return err
		}
		audience = append(audience, users...)
		return nil
	}

	switch change.Action {
	case domain.ActionReturnToIndexing, domain.ActionReject:
		if err := addByUsername(doc.IndexedBy); err != nil {
			return nil, err
		}
	case domain.ActionAssignForTreatment:
		if err := addByUsername(doc.AssignedTo); err != nil {
			return nil, err
		}
	case domain.ActionValidateAndArchive:
		if err := addSupervisors(); err != nil {
			return nil, err
		}
		if err := addByUsername(doc.AssignedTo); err != nil {
			return nil, err
		}
	default: // index, executeTreatment
		if err := addSupervisors(); err != nil {
			return nil, err
		}
	}

	return dedupeUsers(audience), nil
}

func dedupeUsers(users []domain.User) []domain.User {
	seen := make(map[uuid.UUID]struct{}, len(users))
	out := users[:0]
	for _, u := range users {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

// describe maps a change to the notification type, title and body.
func (f *Fanout) describe(change StatusChange) (kind, title, message string) {
	doc := change.Document

	switch change.Action {
	case domain.ActionIndex:
		return "indexed", "Document indexed",
			fmt.Sprintf("Document %q from %s was indexed under %s.", doc.Subject, doc.Sender, doc.ReferenceUnique)
	case domain.ActionAssignForTreatment:
		return "assigned", "Document assigned for treatment",
			fmt.Sprintf("Document %q from %s was assigned to you for treatment.", doc.Subject, doc.Sender)
	case domain.ActionExecuteTreatment:
		return "pending_validation", "Treatment awaiting validation",
			fmt.Sprintf("Document %q was treated. Validation is required before archival.", doc.Subject)
	case domain.ActionReturnToIndexing:
		reason := change.Comment
		if reason == "" {
			reason = "not specified"
		}
		return "returned", "Document returned to indexing",
			fmt.Sprintf("Document %q was returned to indexing. Reason: %s.", doc.Subject, reason)
	case domain.ActionReject:
		reason := change.Comment
		if reason == "" {
			reason = "not specified"
		}
		return "rejected", "Document rejected",
			fmt.Sprintf("Document %q was rejected. Reason: %s.", doc.Subject, reason)
	case domain.ActionValidateAndArchive:
		return "archived", "Document archived",
			fmt.Sprintf("Document %q was validated and archived.", doc.Subject)
	default:
		return "status_change", "Document status changed",
			fmt.Sprintf("Document %q moved to status %s.", doc.Subject, change.NewStatus)
	}
}
