package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedUser creates a user with the given role and service.
// Returns a filled domain.User.
func SeedUser(t *testing.T, pool *pgxpool.Pool, role domain.Role, service string) domain.User {
	t.Helper()
	ctx := context.Background()

	suffix := uniqueSuffix()
	user := domain.User{
		ID:       uuid.New(),
		Username: "user-" + suffix,
		Email:    "user-" + suffix + "@example.com",
		Role:     role,
		Service:  service,
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO users (id, username, email, role, service)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.Email, string(user.Role), user.Service,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedUser insert user: %v", err)
	}

	return user
}

// SeedDocument creates a document in the given status with unique sequence
// and reference values. Returns a filled domain.Document.
func SeedDocument(t *testing.T, pool *pgxpool.Pool, status domain.Status) domain.Document {
	t.Helper()
	ctx := context.Background()

	suffix := uniqueSuffix()
	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := domain.Document{
		ID:              uuid.New(),
		ReferenceUnique: "REFE-TEST-" + suffix,
		SequenceNumber:  "ACQE-TEST-" + suffix,
		CorrelationUUID: uuid.New(),
		Subject:         "Seeded subject " + suffix,
		Sender:          "Seeded sender " + suffix,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO documents (
			id, reference_unique, sequence_number, correlation_uuid,
			subject, sender, status, response_required, created_at, updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)`,
		doc.ID, doc.ReferenceUnique, doc.SequenceNumber, doc.CorrelationUUID,
		doc.Subject, doc.Sender, string(doc.Status), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedDocument insert document: %v", err)
	}

	return doc
}

// SeedHistoryEntry creates one history entry for the given entity.
// Returns the filled domain.HistoryEntry.
func SeedHistoryEntry(t *testing.T, pool *pgxpool.Pool, entityType domain.EntityType, entityID uuid.UUID, action string) domain.HistoryEntry {
	t.Helper()
	ctx := context.Background()

	entry := domain.HistoryEntry{
		ID:            uuid.New(),
		EntityType:    entityType,
		EntityID:      entityID,
		Action:        action,
		ActorName:     "seeder",
		OriginAddress: "unknown",
		ClientAgent:   "unknown",
		Digest:        "seeded-digest-" + uniqueSuffix(),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}

	_, err := pool.Exec(ctx,
		`INSERT INTO entity_history (
			id, entity_type, entity_id, action, actor_id, actor_name,
			details, origin_address, client_agent, digest, created_at
		 )
		 VALUES ($1, $2, $3, $4, NULL, $5, '{}', $6, $7, $8, $9)`,
		entry.ID, string(entry.EntityType), entry.EntityID, entry.Action,
		entry.ActorName, entry.OriginAddress, entry.ClientAgent,
		entry.Digest, entry.CreatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedHistoryEntry insert: %v", err)
	}

	return entry
}
