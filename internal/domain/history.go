package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the kind of entity a history entry belongs to, so
// one audit store covers every document kind.
type EntityType string

const (
	EntityTypeDocument EntityType = "DOCUMENT"
	EntityTypeOutgoing EntityType = "OUTGOING_DRAFT"
)

func (e EntityType) String() string { return string(e) }

func (e EntityType) IsValid() bool {
	switch e {
	case EntityTypeDocument, EntityTypeOutgoing:
		return true
	}
	return false
}

// HistoryEntry is an immutable audit record of one action taken against an
// entity. Append-only: no update or delete exists in the public contract.
//
// Digest is a SHA-256 over the canonical serialization of the identifying
// fields; it lets any reader re-verify a surviving row, but entries are not
// chained to each other.
type HistoryEntry struct {
	ID         uuid.UUID
	EntityType EntityType
	EntityID   uuid.UUID
	Action     string
	ActorID    *uuid.UUID
	ActorName  string
	Details    map[string]any

	OriginAddress string
	ClientAgent   string

	Digest    string
	CreatedAt time.Time
}

// Notification is one message delivered to one recipient about a document
// status change. DedupeKey carries the at-most-once guarantee: replays of
// the same fan-out hit the unique constraint and are dropped.
type Notification struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Type       string
	Title      string
	Message    string
	DocumentID *uuid.UUID
	DedupeKey  string
	CreatedAt  time.Time
}

// User is the minimal directory record needed to resolve notification
// audiences and name actors.
type User struct {
	ID       uuid.UUID
	Username string
	Email    string
	Role     Role
	Service  string
}

// RequestMeta is the provenance recorded with every history entry.
type RequestMeta struct {
	OriginAddress string
	ClientAgent   string
}

// unknownMeta mirrors the stored value when provenance is absent.
const unknownMetaValue = "unknown"

// OrUnknown returns the meta with empty fields replaced by "unknown".
func (m RequestMeta) OrUnknown() RequestMeta {
	if m.OriginAddress == "" {
		m.OriginAddress = unknownMetaValue
	}
	if m.ClientAgent == "" {
		m.ClientAgent = unknownMetaValue
	}
	return m
}
