//go:build e2e

package e2e_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/testhelper"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

// TestE2E_DocumentLifecycle walks one document through the full happy path:
// acquisition, indexing, assignment, treatment, validation and archival,
// asserting the audit trail and the auto-created response draft on the way.
func TestE2E_DocumentLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	clerk := testhelper.SeedUser(t, ts.Pool, domain.RoleAgent, "MAILROOM")
	supervisor := testhelper.SeedUser(t, ts.Pool, domain.RoleSupervisor, "MAILROOM")
	agent := testhelper.SeedUser(t, ts.Pool, domain.RoleAgent, "URBANISM")
	validator := testhelper.SeedUser(t, ts.Pool, domain.RoleValidator, "URBANISM")

	clerkToken := tokenFor(t, ts, clerk)
	supervisorToken := tokenFor(t, ts, supervisor)
	agentToken := tokenFor(t, ts, agent)
	validatorToken := tokenFor(t, ts, validator)

	// Acquisition: any authenticated user can register incoming mail.
	status, body := doJSON(t, ts, clerkToken, http.MethodPost, "/api/documents", map[string]any{
		"subject":          "Building permit extension",
		"sender":           "Architecture Bureau Nord",
		"responseRequired": true,
	})
	require.Equal(t, http.StatusCreated, status, "create: %v", body)
	docID := body["id"].(string)

	assert.Equal(t, "ACQUIRED", body["status"])
	require.IsType(t, "", body["sequenceNumber"])
	assert.True(t, strings.HasPrefix(body["sequenceNumber"].(string), "ACQE-"),
		"sequence number %q should carry the incoming prefix", body["sequenceNumber"])
	assert.True(t, strings.HasPrefix(body["referenceUnique"].(string), "REFE-"),
		"reference %q should carry the reference prefix", body["referenceUnique"])
	assert.NotEmpty(t, body["correlationUuid"])

	// Indexing requires a privileged role while no service is assigned.
	status, body = transition(t, ts, supervisorToken, docID, "index", nil)
	require.Equal(t, http.StatusOK, status, "index: %v", body)
	assert.Equal(t, "INDEXED", body["newStatus"])
	doc := body["document"].(map[string]any)
	assert.Equal(t, supervisor.Username, doc["indexedBy"])

	// Assignment routes the document to the responsible service.
	status, body = transition(t, ts, supervisorToken, docID, "assignForTreatment", map[string]any{
		"assignService": "urbanism",
		"assignTo":      agent.Username,
	})
	require.Equal(t, http.StatusOK, status, "assign: %v", body)
	assert.Equal(t, "IN_TREATMENT", body["newStatus"])
	doc = body["document"].(map[string]any)
	assert.Equal(t, "URBANISM", doc["assignedService"], "service code is stored normalized")
	assert.Equal(t, agent.Username, doc["assignedTo"])
	assert.NotEmpty(t, doc["treatmentStartedAt"])

	// Treatment by the assigned service's agent. Since a response is
	// required, an outgoing draft must be created exactly once.
	status, body = transition(t, ts, agentToken, docID, "executeTreatment", map[string]any{
		"comment": "Extension granted for 12 months",
	})
	require.Equal(t, http.StatusOK, status, "execute: %v", body)
	assert.Equal(t, "PENDING_VALIDATION", body["newStatus"])

	draft, ok := body["responseDraft"].(map[string]any)
	require.True(t, ok, "expected a response draft for a response-required document")
	assert.Equal(t, "DRAFT", draft["status"])
	assert.True(t, strings.HasPrefix(draft["referenceUnique"].(string), "ACQS-"),
		"draft reference %q should carry the outgoing prefix", draft["referenceUnique"])
	assert.Equal(t, docID, draft["sourceDocumentId"])
	assert.Equal(t, "Architecture Bureau Nord", draft["recipient"])

	// Validation is reserved to the assigned service's validator.
	status, body = transition(t, ts, validatorToken, docID, "validateAndArchive", map[string]any{
		"comment": "Checked and approved",
	})
	require.Equal(t, http.StatusOK, status, "archive: %v", body)
	assert.Equal(t, "ARCHIVED", body["newStatus"])

	// The document read back reflects the terminal state and the draft link.
	status, body = doJSON(t, ts, clerkToken, http.MethodGet, "/api/documents/"+docID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ARCHIVED", body["status"])
	assert.NotEmpty(t, body["responseOutgoingId"])

	// The audit trail has one entry per action plus the creation entry,
	// each carrying a digest and the acting user.
	status, body = doJSON(t, ts, clerkToken, http.MethodGet, "/api/documents/"+docID+"/history", nil)
	require.Equal(t, http.StatusOK, status)
	entries := body["history"].([]any)
	require.GreaterOrEqual(t, len(entries), 5, "creation + 4 transitions")

	actions := make([]string, 0, len(entries))
	for _, raw := range entries {
		entry := raw.(map[string]any)
		assert.NotEmpty(t, entry["digest"], "every entry carries an integrity digest")
		assert.NotEmpty(t, entry["actorName"])
		actions = append(actions, entry["action"].(string))
	}
	assert.Contains(t, actions, "Document indexed")
	assert.Contains(t, actions, "Validated and archived")

	// Notifications are delivered asynchronously; the supervisor hears about
	// the indexing eventually.
	require.Eventually(t, func() bool {
		status, body := doJSON(t, ts, supervisorToken, http.MethodGet, "/api/notifications", nil)
		if status != http.StatusOK {
			return false
		}
		notifications, ok := body["notifications"].([]any)
		return ok && len(notifications) > 0
	}, 10*time.Second, 200*time.Millisecond, "supervisor should receive a notification")
}

// TestE2E_ResponseDraftCreatedOnce verifies that re-treating a document after
// a return to indexing does not create a second outgoing draft.
func TestE2E_ResponseDraftCreatedOnce(t *testing.T) {
	ts := setupTestServer(t)

	supervisor := testhelper.SeedUser(t, ts.Pool, domain.RoleSupervisor, "MAILROOM")
	validator := testhelper.SeedUser(t, ts.Pool, domain.RoleValidator, "FINANCE")

	supervisorToken := tokenFor(t, ts, supervisor)
	validatorToken := tokenFor(t, ts, validator)

	docID := createDocument(t, ts, supervisorToken, true)

	status, body := transition(t, ts, supervisorToken, docID, "index", nil)
	require.Equal(t, http.StatusOK, status, "index: %v", body)
	status, body = transition(t, ts, supervisorToken, docID, "assignForTreatment", map[string]any{
		"assignService": "FINANCE",
	})
	require.Equal(t, http.StatusOK, status, "assign: %v", body)

	status, body = transition(t, ts, supervisorToken, docID, "executeTreatment", nil)
	require.Equal(t, http.StatusOK, status, "first execute: %v", body)
	firstDraft := body["responseDraft"].(map[string]any)
	firstDraftID := firstDraft["id"].(string)

	// Send it back and treat it again.
	status, body = transition(t, ts, validatorToken, docID, "returnToIndexing", map[string]any{
		"comment": "missing invoice reference",
	})
	require.Equal(t, http.StatusOK, status, "return: %v", body)
	status, body = transition(t, ts, supervisorToken, docID, "assignForTreatment", map[string]any{
		"assignService": "FINANCE",
	})
	require.Equal(t, http.StatusOK, status, "re-assign: %v", body)
	status, body = transition(t, ts, supervisorToken, docID, "executeTreatment", nil)
	require.Equal(t, http.StatusOK, status, "second execute: %v", body)

	// The second treatment must not mint a new draft.
	_, hasDraft := body["responseDraft"]
	assert.False(t, hasDraft, "second treatment should not create another draft")

	status, body = doJSON(t, ts, supervisorToken, http.MethodGet, "/api/documents/"+docID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, firstDraftID, body["responseOutgoingId"], "draft link must be stable")
}
