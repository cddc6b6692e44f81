package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mailroomhq/mailroom-backend/internal/audit"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
	"github.com/mailroomhq/mailroom-backend/internal/metrics"
	"github.com/mailroomhq/mailroom-backend/internal/notify"
)

// PerformTransition applies one guarded status change.
//
// The persistence update is conditioned on the previously loaded status, so
// of two concurrent attempts exactly one wins; the loser observes zero
// affected rows and gets a conflict, never a false success. The history
// write is synchronous: if it fails the transaction rolls back and the
// caller must treat the transition as not applied.
func (s *Service) PerformTransition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	result, err := s.performTransition(ctx, input)
	metrics.TransitionsTotal.WithLabelValues(string(input.Action), outcomeLabel(err)).Inc()
	return result, err
}

func (s *Service) performTransition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	doc, err := s.documents.GetByID(ctx, input.DocumentID)
	if err != nil {
		return nil, err
	}

	target, ok := input.Action.TargetStatus()
	if !ok {
		return nil, domain.NewValidationError("action", "unknown action")
	}

	from := doc.Status
	if !domain.CanTransition(from, target) {
		return nil, &domain.TransitionError{From: from, To: target}
	}

	if err := domain.Authorize(input.Actor, input.Action, doc.AssignedService); err != nil {
		return nil, err
	}

	upd, label, details := s.buildUpdate(input, from, target)
	meta := input.Meta.OrUnknown()

	var entry domain.HistoryEntry
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		rows, err := s.documents.UpdateStatus(txCtx, doc.ID, from, target, upd)
		if err != nil {
			return fmt.Errorf("persist status: %w", err)
		}
		if rows == 0 {
			// Lost the race or the document vanished since load.
			return &domain.ConflictError{DocumentID: doc.ID.String(), Expected: from}
		}

		entry, err = s.history.Record(txCtx, audit.RecordInput{
			EntityType: domain.EntityTypeDocument,
			EntityID:   doc.ID,
			Action:     label,
			ActorID:    &input.Actor.ID,
			ActorName:  input.Actor.Name,
			Details:    details,
			Meta:       meta,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	applyUpdate(doc, target, upd)
	result := &TransitionResult{Document: doc, NewStatus: target}

	// Response draft creation sits outside the core transaction: the
	// transition is already durable and audited, and a failure here is a
	// rare, detectable inconsistency rather than a reason to roll back.
	if input.Action == domain.ActionExecuteTreatment && doc.ResponseRequired && doc.ResponseOutgoingID == nil {
		draft, err := s.createResponseDraft(ctx, doc, input.Actor, meta)
		if err != nil {
			s.log.ErrorContext(ctx, "response draft creation failed",
				slog.String("document_id", doc.ID.String()),
				slog.Any("error", err),
			)
		} else if draft != nil {
			doc.ResponseOutgoingID = &draft.ID
			result.ResponseDraft = draft
		}
	}

	s.notifyAsync(ctx, notify.StatusChange{
		Document:  doc,
		Action:    input.Action,
		NewStatus: target,
		ActorName: input.Actor.Name,
		HistoryID: entry.ID,
		Comment:   derefOrEmpty(input.Comment),
	})

	s.log.InfoContext(ctx, "transition applied",
		slog.String("document_id", doc.ID.String()),
		slog.String("action", string(input.Action)),
		slog.String("from", string(from)),
		slog.String("to", string(target)),
		slog.String("actor", input.Actor.Name),
	)

	return result, nil
}

// buildUpdate maps an action to its field changes, history label and
// history details.
func (s *Service) buildUpdate(input TransitionInput, from, target domain.Status) (domain.StatusUpdate, string, map[string]any) {
	now := s.now().UTC()
	details := map[string]any{
		"previous_status": string(from),
		"new_status":      string(target),
	}

	var upd domain.StatusUpdate
	var label string

	switch input.Action {
	case domain.ActionIndex:
		label = "Document indexed"
		indexer := input.Actor.Name
		upd.IndexedBy = &indexer

	case domain.ActionAssignForTreatment:
		label = "Assigned for treatment"
		svc := domain.NormalizeService(*input.AssignService)
		upd.AssignedService = &svc
		upd.AssignedTo = input.AssignTo
		upd.TreatmentStartedAt = &now
		details["assigned_service"] = svc
		if input.AssignTo != nil {
			details["assigned_to"] = *input.AssignTo
		}

	case domain.ActionExecuteTreatment:
		label = "Treatment executed, pending validation"
		upd.TreatmentCompletedAt = &now
		upd.Comment = input.Comment
		if input.Comment != nil {
			details["executed_task"] = *input.Comment
		}

	case domain.ActionReturnToIndexing:
		label = "Returned to indexing"
		upd.ReturnComment = input.Comment
		upd.Comment = input.Comment
		upd.ClearTreatment = true
		if input.Comment != nil {
			details["return_comment"] = *input.Comment
		}

	case domain.ActionReject:
		label = "Document rejected"
		upd.RejectionReason = input.Comment
		if input.Comment != nil {
			details["rejection_reason"] = *input.Comment
		}

	case domain.ActionValidateAndArchive:
		label = "Validated and archived"
		upd.Comment = input.Comment
		details["validated_by"] = input.Actor.Name
		if input.Comment != nil {
			details["validation_comment"] = *input.Comment
		}
	}

	return upd, label, details
}

// applyUpdate mirrors the persisted changes onto the in-memory document so
// side effects and the caller see consistent state without a reload.
func applyUpdate(doc *domain.Document, target domain.Status, upd domain.StatusUpdate) {
	doc.Status = target
	if upd.IndexedBy != nil {
		doc.IndexedBy = upd.IndexedBy
	}
	if upd.AssignedService != nil {
		doc.AssignedService = upd.AssignedService
	}
	if upd.AssignedTo != nil {
		doc.AssignedTo = upd.AssignedTo
	}
	if upd.TreatmentStartedAt != nil {
		doc.TreatmentStartedAt = upd.TreatmentStartedAt
	}
	if upd.TreatmentCompletedAt != nil {
		doc.TreatmentCompletedAt = upd.TreatmentCompletedAt
	}
	if upd.ClearTreatment {
		doc.TreatmentStartedAt = nil
		doc.TreatmentCompletedAt = nil
	}
	if upd.Comment != nil {
		doc.Comment = upd.Comment
	}
	if upd.ReturnComment != nil {
		doc.ReturnComment = upd.ReturnComment
	}
	if upd.RejectionReason != nil {
		doc.RejectionReason = upd.RejectionReason
	}
}

// notifyAsync fires the fan-out without blocking the response. Failures are
// logged; notification is best-effort and never rolls a transition back.
func (s *Service) notifyAsync(ctx context.Context, change notify.StatusChange) {
	detached := context.WithoutCancel(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(detached, s.notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyStatusChange(nctx, change); err != nil {
			metrics.NotificationsTotal.WithLabelValues("error").Inc()
			s.log.ErrorContext(nctx, "notification fan-out failed",
				slog.String("document_id", change.Document.ID.String()),
				slog.String("status", string(change.NewStatus)),
				slog.Any("error", err),
			)
			return
		}
		metrics.NotificationsTotal.WithLabelValues("ok").Inc()
	}()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
