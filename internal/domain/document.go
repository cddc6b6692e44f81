package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document is a tracked correspondence record moving through the lifecycle.
//
// ReferenceUnique and SequenceNumber are generated once at acquisition and
// never change. Status mutates only through the lifecycle service, which is
// the sole path that also appends history. Documents are never physically
// deleted; rejection and archival are terminal states.
type Document struct {
	ID              uuid.UUID
	ReferenceUnique string
	SequenceNumber  string
	CorrelationUUID uuid.UUID

	Subject string
	Sender  string

	Status          Status
	AssignedService *string
	AssignedTo      *string
	IndexedBy       *string

	ResponseRequired   bool
	ResponseDue        *time.Time
	ResponseOutgoingID *uuid.UUID
	ResponseCreatedAt  *time.Time

	TreatmentStartedAt   *time.Time
	TreatmentCompletedAt *time.Time

	Comment         *string
	ReturnComment   *string
	RejectionReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusUpdate carries the action-specific field changes applied together
// with a status change. Nil pointers leave the column untouched.
type StatusUpdate struct {
	AssignedService      *string
	AssignedTo           *string
	IndexedBy            *string
	TreatmentStartedAt   *time.Time
	TreatmentCompletedAt *time.Time
	ClearTreatment       bool
	Comment              *string
	ReturnComment        *string
	RejectionReason      *string
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	Statuses        []Status
	AssignedService *string
	AssignedTo      *string
	Limit           int
	Offset          int
}
