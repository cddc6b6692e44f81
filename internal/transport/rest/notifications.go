package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mailroomhq/mailroom-backend/internal/domain"
)

type notificationLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error)
}

// NotificationHandler serves the authenticated actor's notification feed.
type NotificationHandler struct {
	notifications notificationLister
	log           *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notifications notificationLister, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		log:           logger.With("handler", "notifications"),
	}
}

type notificationResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	DocumentID *string   `json:"documentId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// List handles GET /api/notifications. Actors see their own feed only.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > 200 {
			n = 200
		}
		limit = n
	}

	notifications, err := h.notifications.ListByUser(r.Context(), actor.ID, limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "list notifications", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp := notificationResponse{
			ID:        n.ID.String(),
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			CreatedAt: n.CreatedAt,
		}
		if n.DocumentID != nil {
			s := n.DocumentID.String()
			resp.DocumentID = &s
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}
