package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailroomhq/mailroom-backend/internal/auth"
	"github.com/mailroomhq/mailroom-backend/internal/domain"
	"github.com/mailroomhq/mailroom-backend/internal/lifecycle"
)

// lifecycleService defines the operations DocumentHandler needs.
type lifecycleService interface {
	CreateDocument(ctx context.Context, input lifecycle.CreateDocumentInput) (*domain.Document, error)
	PerformTransition(ctx context.Context, input lifecycle.TransitionInput) (*lifecycle.TransitionResult, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, int, error)
}

type historyReader interface {
	GetHistory(ctx context.Context, entityType domain.EntityType, entityID uuid.UUID) ([]domain.HistoryEntry, error)
}

// DocumentHandler serves the document lifecycle REST endpoints.
type DocumentHandler struct {
	svc     lifecycleService
	history historyReader
	log     *slog.Logger
}

// NewDocumentHandler creates a DocumentHandler.
func NewDocumentHandler(svc lifecycleService, history historyReader, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		svc:     svc,
		history: history,
		log:     logger.With("handler", "documents"),
	}
}

type createDocumentRequest struct {
	Subject          string     `json:"subject"`
	Sender           string     `json:"sender"`
	ResponseRequired bool       `json:"responseRequired"`
	ResponseDue      *time.Time `json:"responseDue,omitempty"`
	Comment          *string    `json:"comment,omitempty"`
}

type transitionRequest struct {
	Comment       *string `json:"comment,omitempty"`
	AssignService *string `json:"assignService,omitempty"`
	AssignTo      *string `json:"assignTo,omitempty"`
}

type documentResponse struct {
	ID              string `json:"id"`
	ReferenceUnique string `json:"referenceUnique"`
	SequenceNumber  string `json:"sequenceNumber"`
	CorrelationUUID string `json:"correlationUuid"`

	Subject string `json:"subject"`
	Sender  string `json:"sender"`

	Status          string  `json:"status"`
	AssignedService *string `json:"assignedService,omitempty"`
	AssignedTo      *string `json:"assignedTo,omitempty"`
	IndexedBy       *string `json:"indexedBy,omitempty"`

	ResponseRequired   bool       `json:"responseRequired"`
	ResponseDue        *time.Time `json:"responseDue,omitempty"`
	ResponseOutgoingID *string    `json:"responseOutgoingId,omitempty"`
	ResponseCreatedAt  *time.Time `json:"responseCreatedAt,omitempty"`

	TreatmentStartedAt   *time.Time `json:"treatmentStartedAt,omitempty"`
	TreatmentCompletedAt *time.Time `json:"treatmentCompletedAt,omitempty"`

	Comment         *string `json:"comment,omitempty"`
	ReturnComment   *string `json:"returnComment,omitempty"`
	RejectionReason *string `json:"rejectionReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type transitionResponse struct {
	Document      documentResponse `json:"document"`
	NewStatus     string           `json:"newStatus"`
	ResponseDraft *draftResponse   `json:"responseDraft,omitempty"`
}

type draftResponse struct {
	ID               string    `json:"id"`
	ReferenceUnique  string    `json:"referenceUnique"`
	SourceDocumentID string    `json:"sourceDocumentId"`
	Recipient        string    `json:"recipient"`
	Subject          string    `json:"subject"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
}

type listDocumentsResponse struct {
	Documents []documentResponse `json:"documents"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

type historyEntryResponse struct {
	ID            string         `json:"id"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	Action        string         `json:"action"`
	ActorID       *string        `json:"actorId,omitempty"`
	ActorName     string         `json:"actorName"`
	Details       map[string]any `json:"details,omitempty"`
	OriginAddress string         `json:"originAddress"`
	ClientAgent   string         `json:"clientAgent"`
	Digest        string         `json:"digest"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Create handles POST /api/documents.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := h.svc.CreateDocument(r.Context(), lifecycle.CreateDocumentInput{
		Subject:          req.Subject,
		Sender:           req.Sender,
		ResponseRequired: req.ResponseRequired,
		ResponseDue:      req.ResponseDue,
		Comment:          req.Comment,
		Actor:            actor,
		Meta:             requestMeta(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// Transition handles POST /api/documents/{id}/actions/{action}.
func (h *DocumentHandler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}
	action := domain.Action(r.PathValue("action"))
	if !action.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	var req transitionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.svc.PerformTransition(r.Context(), lifecycle.TransitionInput{
		DocumentID:    id,
		Action:        action,
		Actor:         actor,
		Comment:       req.Comment,
		AssignService: req.AssignService,
		AssignTo:      req.AssignTo,
		Meta:          requestMeta(r),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := transitionResponse{
		Document:  toDocumentResponse(result.Document),
		NewStatus: string(result.NewStatus),
	}
	if result.ResponseDraft != nil {
		d := toDraftResponse(result.ResponseDraft)
		resp.ResponseDraft = &d
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/documents/{id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// List handles GET /api/documents with optional status, service, assignedTo,
// limit and offset query parameters.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	filter, err := parseDocumentFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}

	docs, total, err := h.svc.ListDocuments(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}

	writeJSON(w, http.StatusOK, listDocumentsResponse{
		Documents: out,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
}

// History handles GET /api/documents/{id}/history.
func (h *DocumentHandler) History(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	// The history endpoint answers for existing documents only.
	if _, err := h.svc.GetDocument(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}

	entries, err := h.history.GetHistory(r.Context(), domain.EntityTypeDocument, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toHistoryEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func parseDocumentFilter(r *http.Request) (domain.DocumentFilter, error) {
	var filter domain.DocumentFilter
	q := r.URL.Query()

	for _, raw := range q["status"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status := domain.Status(strings.ToUpper(part))
			if !status.IsValid() {
				return filter, errors.New("unknown status " + strconv.Quote(part))
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if svc := q.Get("service"); svc != "" {
		normalized := domain.NormalizeService(svc)
		filter.AssignedService = &normalized
	}
	if assignee := q.Get("assignedTo"); assignee != "" {
		filter.AssignedTo = &assignee
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}

func (h *DocumentHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &validationErr):
		writeValidationError(w, validationErr)
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrSequenceExhausted):
		h.log.ErrorContext(r.Context(), "sequence exhausted", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "could not allocate a unique reference, retry later")
	default:
		h.log.ErrorContext(r.Context(), "internal error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// requireActor rejects anonymous requests. The auth middleware stores the
// actor only for requests with a valid token.
func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := auth.ActorFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return domain.Actor{}, false
	}
	return actor, true
}

func requestMeta(r *http.Request) domain.RequestMeta {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return domain.RequestMeta{
		OriginAddress: host,
		ClientAgent:   r.UserAgent(),
	}
}

func toDocumentResponse(doc *domain.Document) documentResponse {
	resp := documentResponse{
		ID:                   doc.ID.String(),
		ReferenceUnique:      doc.ReferenceUnique,
		SequenceNumber:       doc.SequenceNumber,
		CorrelationUUID:      doc.CorrelationUUID.String(),
		Subject:              doc.Subject,
		Sender:               doc.Sender,
		Status:               string(doc.Status),
		AssignedService:      doc.AssignedService,
		AssignedTo:           doc.AssignedTo,
		IndexedBy:            doc.IndexedBy,
		ResponseRequired:     doc.ResponseRequired,
		ResponseDue:          doc.ResponseDue,
		ResponseCreatedAt:    doc.ResponseCreatedAt,
		TreatmentStartedAt:   doc.TreatmentStartedAt,
		TreatmentCompletedAt: doc.TreatmentCompletedAt,
		Comment:              doc.Comment,
		ReturnComment:        doc.ReturnComment,
		RejectionReason:      doc.RejectionReason,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
	if doc.ResponseOutgoingID != nil {
		s := doc.ResponseOutgoingID.String()
		resp.ResponseOutgoingID = &s
	}
	return resp
}

func toDraftResponse(draft *domain.OutgoingDraft) draftResponse {
	return draftResponse{
		ID:               draft.ID.String(),
		ReferenceUnique:  draft.ReferenceUnique,
		SourceDocumentID: draft.SourceDocumentID.String(),
		Recipient:        draft.Recipient,
		Subject:          draft.Subject,
		Status:           string(draft.Status),
		CreatedAt:        draft.CreatedAt,
	}
}

func toHistoryEntryResponse(e domain.HistoryEntry) historyEntryResponse {
	resp := historyEntryResponse{
		ID:            e.ID.String(),
		EntityType:    string(e.EntityType),
		EntityID:      e.EntityID.String(),
		Action:        e.Action,
		ActorName:     e.ActorName,
		Details:       e.Details,
		OriginAddress: e.OriginAddress,
		ClientAgent:   e.ClientAgent,
		Digest:        e.Digest,
		CreatedAt:     e.CreatedAt,
	}
	if e.ActorID != nil {
		s := e.ActorID.String()
		resp.ActorID = &s
	}
	return resp
}

func writeValidationError(w http.ResponseWriter, verr *domain.ValidationError) {
	fields := make([]map[string]string, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		fields = append(fields, map[string]string{"field": fe.Field, "message": fe.Message})
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
