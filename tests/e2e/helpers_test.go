//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/document"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/history"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/notification"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/outgoing"
	"github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/testhelper"
	userrepo "github.com/mailroomhq/mailroom-backend/internal/adapter/postgres/user"
	"github.com/mailroomhq/mailroom-backend/internal/audit"
	authpkg "github.com/mailroomhq/mailroom-backend/internal/auth"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
	"github.com/mailroomhq/mailroom-backend/internal/lifecycle"
	"github.com/mailroomhq/mailroom-backend/internal/notify"
	"github.com/mailroomhq/mailroom-backend/internal/sequence"
	"github.com/mailroomhq/mailroom-backend/internal/transport/middleware"
	"github.com/mailroomhq/mailroom-backend/internal/transport/rest"
)

const testJWTSecret = "e2e-secret-key-with-enough-length!!"

// testServer wraps the full-stack HTTP server for E2E tests.
type testServer struct {
	URL    string
	Client *http.Client
	Pool   *pgxpool.Pool
	jwt    *authpkg.JWTManager
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct{ t *testing.T }

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// setupTestServer wires the real stack (repositories, lifecycle service,
// REST transport, auth middleware) against a containerized database.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	pool := testhelper.SetupTestDB(t)

	logger := slog.New(slog.NewTextHandler(testLogWriter{t}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	documentRepo := document.New(pool)
	outgoingRepo := outgoing.New(pool)
	historyRepo := history.New(pool)
	notificationRepo := notification.New(pool)
	userRepo := userrepo.New(pool)
	txManager := postgres.NewTxManager(pool)

	recorder := audit.NewRecorder(logger, historyRepo)
	fanout := notify.NewFanout(logger, userRepo, notificationRepo)

	svc := lifecycle.NewService(
		logger,
		documentRepo,
		outgoingRepo,
		recorder,
		sequence.New(logger, sequence.ScannerFunc(documentRepo.LastAllocatedSequence)),
		sequence.New(logger, sequence.ScannerFunc(documentRepo.LastAllocatedReference)),
		sequence.New(logger, sequence.ScannerFunc(outgoingRepo.LastAllocatedReference)),
		fanout,
		txManager,
	)

	jwtManager := authpkg.NewJWTManager(testJWTSecret, "mailroom", time.Hour)

	router := rest.NewRouter(rest.Handlers{
		Health:        rest.NewHealthHandler(pool, "e2e"),
		Documents:     rest.NewDocumentHandler(svc, recorder, logger),
		Notifications: rest.NewNotificationHandler(notificationRepo, logger),
	})

	handler := middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(logger),
		middleware.Auth(jwtManager),
	)(router)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		URL:    srv.URL,
		Client: srv.Client(),
		Pool:   pool,
		jwt:    jwtManager,
	}
}

// tokenFor issues an access token for a seeded user.
func tokenFor(t *testing.T, ts *testServer, user domain.User) string {
	t.Helper()
	token, err := ts.jwt.GenerateAccessToken(domain.Actor{
		ID:      user.ID,
		Name:    user.Username,
		Role:    user.Role,
		Service: user.Service,
	})
	require.NoError(t, err)
	return token
}

// doJSON performs an HTTP request with an optional bearer token and JSON
// body, returning the status code and the decoded response body.
func doJSON(t *testing.T, ts *testServer, token, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		// Middleware rejections are plain text; everything else is JSON.
		_ = json.Unmarshal(raw, &decoded)
	}

	return resp.StatusCode, decoded
}

// createDocument creates a fresh document over the API and returns its id.
func createDocument(t *testing.T, ts *testServer, token string, responseRequired bool) string {
	t.Helper()

	status, body := doJSON(t, ts, token, http.MethodPost, "/api/documents", map[string]any{
		"subject":          fmt.Sprintf("Permit request %d", time.Now().UnixNano()),
		"sender":           "City Planning Office",
		"responseRequired": responseRequired,
	})
	require.Equal(t, http.StatusCreated, status, "create document: %v", body)

	id, ok := body["id"].(string)
	require.True(t, ok, "expected document id in response")
	return id
}

// transition performs a lifecycle action and returns the status code and body.
func transition(t *testing.T, ts *testServer, token, docID, action string, body map[string]any) (int, map[string]any) {
	t.Helper()
	return doJSON(t, ts, token, http.MethodPost, "/api/documents/"+docID+"/actions/"+action, body)
}
