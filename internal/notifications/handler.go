package notifications

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

const cacheControl = "private, max-age=30"

// Feeder is the notification surface used by the HTTP handler.
type Feeder interface {
	CurrentETag(userID string) (string, bool)
	Feed(ctx context.Context, userID string) (Feed, error)
	Poll(ctx context.Context, userID string, since time.Time) (PollResult, error)
	MarkRead(ctx context.Context, userID string, ids []string, all bool) (int64, error)
	Delete(ctx context.Context, userID string, ids []string) (int64, error)
	Create(ctx context.Context, in CreateInput, actor auth.Principal) ([]Notification, error)
}

var _ Feeder = (*Service)(nil)

// Handler exposes the notification feed and admin publishing.
type Handler struct {
	logger  *slog.Logger
	service Feeder
	guard   auth.Middleware
}

// NewHandler constructs a notification handler.
func NewHandler(logger *slog.Logger, service Feeder, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers the user feed under /api/notifications.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.Require(auth.LevelGeneral))
	r.Get("/", h.handleFeed)
	r.Post("/", h.handleAction)
	r.Delete("/", h.handleDelete)
}

// MountAdmin registers admin publishing under /api/admin/notifications.
func (h *Handler) MountAdmin(r chi.Router) {
	r.With(h.guard.Require(auth.LevelAdmin)).Post("/", h.handleCreate)
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	match := r.Header.Get("If-None-Match")
	if match != "" {
		if etag, ok := h.service.CurrentETag(principal.UserID); ok && etag == match {
			w.Header().Set("ETag", etag)
			w.Header().Set("Cache-Control", cacheControl)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	feed, err := h.service.Feed(r.Context(), principal.UserID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	etag := feed.ETag()
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", cacheControl)
	if match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	httpx.OK(w, feed)
}

type actionRequest struct {
	Action      string     `json:"action"`
	LastUpdated *time.Time `json:"lastUpdated"`
	IDs         []string   `json:"ids"`
	All         bool       `json:"all"`
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())

	switch req.Action {
	case "poll":
		since := time.Now().Add(-FeedTTL)
		if req.LastUpdated != nil {
			since = *req.LastUpdated
		}
		res, err := h.service.Poll(r.Context(), principal.UserID, since)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		httpx.OK(w, res)
	case "mark_read":
		n, err := h.service.MarkRead(r.Context(), principal.UserID, req.IDs, req.All)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.Envelope{
			Success: true,
			Data:    map[string]any{"updated": n},
			Message: "알림을 읽음 처리했습니다.",
		})
	default:
		httpx.Fail(w, http.StatusBadRequest, "지원하지 않는 작업입니다.")
	}
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if raw := strings.TrimSpace(r.URL.Query().Get("ids")); raw != "" {
		req.IDs = strings.Split(raw, ",")
	} else if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	n, err := h.service.Delete(r.Context(), principal.UserID, req.IDs)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Data:    map[string]any{"deleted": n},
		Message: "알림이 삭제되었습니다.",
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	created, err := h.service.Create(r.Context(), in, principal)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{
		Success: true,
		Data:    map[string]any{"notifications": created, "count": len(created)},
	})
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNoIDs) {
		httpx.Fail(w, http.StatusBadRequest, "삭제할 알림 ID가 필요합니다.")
		return
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("notification request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
