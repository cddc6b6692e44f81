package lifecycle

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

// CreateDocumentInput holds the parameters for the acquisition step.
type CreateDocumentInput struct {
	Subject          string
	Sender           string
	ResponseRequired bool
	ResponseDue      *time.Time
	Comment          *string

	Actor domain.Actor
	Meta  domain.RequestMeta
}

// Validate checks all fields and collects all errors.
func (i CreateDocumentInput) Validate() error {
	var errs []domain.FieldError

	subject := strings.TrimSpace(i.Subject)
	if subject == "" {
		errs = append(errs, domain.FieldError{Field: "subject", Message: "required"})
	}
	if len(subject) > 500 {
		errs = append(errs, domain.FieldError{Field: "subject", Message: "max 500 characters"})
	}

	sender := strings.TrimSpace(i.Sender)
	if sender == "" {
		errs = append(errs, domain.FieldError{Field: "sender", Message: "required"})
	}
	if len(sender) > 250 {
		errs = append(errs, domain.FieldError{Field: "sender", Message: "max 250 characters"})
	}

	if i.ResponseDue != nil && !i.ResponseRequired {
		errs = append(errs, domain.FieldError{Field: "response_due", Message: "set only when a response is required"})
	}

	if i.Actor.ID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "actor", Message: "required"})
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

// TransitionInput holds the parameters for one lifecycle transition.
type TransitionInput struct {
	DocumentID uuid.UUID
	Action     domain.Action
	Actor      domain.Actor
	Comment    *string

	// AssignService and AssignTo apply to assignForTreatment only.
	AssignService *string
	AssignTo      *string

	Meta domain.RequestMeta
}

// Validate checks all fields and collects all errors.
func (i TransitionInput) Validate() error {
	var errs []domain.FieldError

	if i.DocumentID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "document_id", Message: "required"})
	}
	if !i.Action.IsValid() {
		errs = append(errs, domain.FieldError{Field: "action", Message: "unknown action"})
	}
	if i.Actor.ID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "actor", Message: "required"})
	}
	if !i.Actor.Role.IsValid() {
		errs = append(errs, domain.FieldError{Field: "actor.role", Message: "unknown role"})
	}

	if i.Action == domain.ActionAssignForTreatment {
		if i.AssignService == nil || domain.NormalizeService(*i.AssignService) == "" {
			errs = append(errs, domain.FieldError{Field: "assign_service", Message: "required for assignForTreatment"})
		}
	}

	if i.Comment != nil && len(*i.Comment) > 2000 {
		errs = append(errs, domain.FieldError{Field: "comment", Message: "max 2000 characters"})
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

// TransitionResult reports a successful transition.
type TransitionResult struct {
	Document  *domain.Document
	NewStatus domain.Status

	// ResponseDraft is set when executeTreatment auto-created an outgoing
	// draft during this call.
	ResponseDraft *domain.OutgoingDraft
}
