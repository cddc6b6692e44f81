package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

// ComputeDigest returns the hex SHA-256 of the entry's canonical
// serialization. The digest covers the identifying fields only, so any
// consumer holding the row can recompute and compare it; it detects silent
// alteration of a surviving row, not deletion or reordering (entries are
// deliberately not chained).
//
// Canonical form:
//
//	entityType|entityID|action|actorID|actorName|RFC3339Nano timestamp|JSON(details)
//
// Details marshal deterministically because Go sorts map keys.
func ComputeDigest(e domain.HistoryEntry) (string, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}

	actorID := ""
	if e.ActorID != nil {
		actorID = e.ActorID.String()
	}

	canonical := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		e.EntityType,
		e.EntityID,
		e.Action,
		actorID,
		e.ActorName,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		details,
	)

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the entry's digest and compares it to the stored one.
func Verify(e domain.HistoryEntry) bool {
	digest, err := ComputeDigest(e)
	if err != nil {
		return false
	}
	return digest == e.Digest
}
