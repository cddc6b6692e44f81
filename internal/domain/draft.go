package domain

import (
	"time"

	"github.com/google/uuid"
)

// DraftStatus is the lifecycle state of an outgoing draft. Only the initial
// state matters to this core; later states belong to the outgoing pipeline.
type DraftStatus string

const (
	DraftStatusDraft DraftStatus = "DRAFT"
)

// OutgoingDraft is an auto-created response stub linked to the incoming
// document that required it. At most one draft exists per source document.
type OutgoingDraft struct {
	ID               uuid.UUID
	ReferenceUnique  string
	SourceDocumentID uuid.UUID
	Recipient        string
	Subject          string
	Status           DraftStatus
	CreatedBy        *uuid.UUID
	CreatedAt        time.Time
}
