package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mailroomhq/mailroom-backend/internal/audit"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
	"github.com/mailroomhq/mailroom-backend/internal/notify"
)

type documentRepoMock struct {
	mu sync.Mutex

	GetByIDFunc             func(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	CreateFunc              func(ctx context.Context, doc *domain.Document) (*domain.Document, error)
	UpdateStatusFunc        func(ctx context.Context, id uuid.UUID, from, to domain.Status, upd domain.StatusUpdate) (int64, error)
	SetResponseOutgoingFunc func(ctx context.Context, id, outgoingID uuid.UUID) (int64, error)
	ListFunc                func(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error)

	updateCalls []domain.StatusUpdate
	linkCalls   int
}

func (m *documentRepoMock) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	return m.GetByIDFunc(ctx, id)
}

func (m *documentRepoMock) Create(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	return m.CreateFunc(ctx, doc)
}

func (m *documentRepoMock) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, upd domain.StatusUpdate) (int64, error) {
	m.mu.Lock()
	m.updateCalls = append(m.updateCalls, upd)
	m.mu.Unlock()
	return m.UpdateStatusFunc(ctx, id, from, to, upd)
}

func (m *documentRepoMock) SetResponseOutgoing(ctx context.Context, id, outgoingID uuid.UUID) (int64, error) {
	m.mu.Lock()
	m.linkCalls++
	m.mu.Unlock()
	return m.SetResponseOutgoingFunc(ctx, id, outgoingID)
}

func (m *documentRepoMock) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error) {
	return m.ListFunc(ctx, filter)
}

type outgoingRepoMock struct {
	mu         sync.Mutex
	CreateFunc func(ctx context.Context, draft *domain.OutgoingDraft) (*domain.OutgoingDraft, error)
	created    []*domain.OutgoingDraft
}

func (m *outgoingRepoMock) Create(ctx context.Context, draft *domain.OutgoingDraft) (*domain.OutgoingDraft, error) {
	m.mu.Lock()
	m.created = append(m.created, draft)
	m.mu.Unlock()
	return m.CreateFunc(ctx, draft)
}

type auditRecorderMock struct {
	mu         sync.Mutex
	RecordFunc func(ctx context.Context, input audit.RecordInput) (domain.HistoryEntry, error)
	inputs     []audit.RecordInput
}

func (m *auditRecorderMock) Record(ctx context.Context, input audit.RecordInput) (domain.HistoryEntry, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	m.mu.Unlock()
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, input)
	}
	return domain.HistoryEntry{ID: uuid.New(), EntityType: input.EntityType, EntityID: input.EntityID, Action: input.Action}, nil
}

func (m *auditRecorderMock) recorded() []audit.RecordInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.RecordInput, len(m.inputs))
	copy(out, m.inputs)
	return out
}

type allocatorMock struct {
	mu       sync.Mutex
	NextFunc func(ctx context.Context, prefix, period string) (string, error)
	calls    int
}

func (m *allocatorMock) Next(ctx context.Context, prefix, period string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.NextFunc(ctx, prefix, period)
}

type notifierMock struct {
	mu      sync.Mutex
	changes []notify.StatusChange
	done    chan struct{}
}

func newNotifierMock() *notifierMock {
	return &notifierMock{done: make(chan struct{}, 8)}
}

func (m *notifierMock) NotifyStatusChange(ctx context.Context, change notify.StatusChange) error {
	m.mu.Lock()
	m.changes = append(m.changes, change)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

// waitForNotify blocks until the detached fan-out goroutine has run.
func (m *notifierMock) waitForNotify(t interface{ Fatal(args ...any) }) notify.StatusChange {
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification fan-out")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changes[len(m.changes)-1]
}

// txManagerMock runs the function inline, matching the behavior the real
// manager exposes to repositories through the context.
type txManagerMock struct {
	RunInTxFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *txManagerMock) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.RunInTxFunc != nil {
		return m.RunInTxFunc(ctx, fn)
	}
	return fn(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedSequence(values ...string) *allocatorMock {
	var mu sync.Mutex
	i := 0
	m := &allocatorMock{}
	m.NextFunc = func(ctx context.Context, prefix, period string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		return v, nil
	}
	return m
}
