package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Renderer is the document surface used by the HTTP handler.
type Renderer interface {
	Render(ctx context.Context, kind Kind, businessID string, format Format) (File, error)
}

var _ Renderer = (*Service)(nil)

// Handler serves estimate and purchase order downloads.
type Handler struct {
	logger   *slog.Logger
	renderer Renderer
	guard    auth.Middleware
}

// NewHandler constructs a document handler.
func NewHandler(logger *slog.Logger, renderer Renderer, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, renderer: renderer, guard: guard}
}

// MountRoutes registers document routes, expected under /api/documents.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(20, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if p, ok := auth.PrincipalFromContext(r.Context()); ok {
				return "user:" + p.UserID, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "문서 생성 요청이 너무 많습니다.")
		}),
	)
	r.With(h.guard.Require(auth.LevelGeneral), limiter).Get("/{kind}/{businessID}", h.handleRender)
}

func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	file, err := h.renderer.Render(r.Context(), kind, chi.URLParam(r, "businessID"), format)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Body)))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(file.Name)))
	_, _ = w.Write(file.Body)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnknownKind):
		httpx.Fail(w, http.StatusBadRequest, "지원하지 않는 문서 형식입니다.")
		return
	case errors.Is(err, httpx.ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, "사업장을 찾을 수 없습니다.")
		return
	}
	h.logger.Error("document request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	httpx.RespondError(w, err)
}
