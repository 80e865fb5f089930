package photos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// multipart overhead allowed on top of the file itself.
const formOverhead = 1 << 20

// Manager is the photo surface used by the HTTP handler.
type Manager interface {
	Upload(ctx context.Context, in UploadInput) (Photo, error)
	List(ctx context.Context, businessID, category string) ([]Photo, error)
	Delete(ctx context.Context, businessID, id string) error
}

var _ Manager = (*Service)(nil)

// Handler exposes facility photo endpoints.
type Handler struct {
	logger  *slog.Logger
	manager Manager
	guard   auth.Middleware
}

// NewHandler constructs a photo handler.
func NewHandler(logger *slog.Logger, manager Manager, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, guard: guard}
}

// MountRoutes registers photo routes, expected under /api/businesses/{id}/photos.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.Require(auth.LevelGeneral))
	r.Get("/", h.handleList)
	r.Post("/", h.handleUpload)
	r.Delete("/{photoID}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	photos, err := h.manager.List(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("category"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.OK(w, photos)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(MaxUploadBytes + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.handleError(w, r, ErrTooLarge)
			return
		}
		httpx.Fail(w, http.StatusBadRequest, "업로드할 파일이 필요합니다.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "업로드할 파일이 필요합니다.")
		return
	}
	defer func() { _ = file.Close() }()
	if header.Size > MaxUploadBytes {
		h.handleError(w, r, ErrTooLarge)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	photo, err := h.manager.Upload(r.Context(), UploadInput{
		BusinessID: chi.URLParam(r, "id"),
		Category:   r.FormValue("category"),
		Filename:   header.Filename,
		Data:       data,
		UploadedBy: principal.UserID,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, httpx.Envelope{Success: true, Data: photo, Message: "사진이 업로드되었습니다."})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "photoID")); err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{Success: true, Message: "사진이 삭제되었습니다."})
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTooLarge):
		httpx.Fail(w, http.StatusRequestEntityTooLarge, "파일 크기는 10MB 이하여야 합니다.")
		return
	case errors.Is(err, ErrUnsupportedType):
		httpx.Fail(w, http.StatusUnsupportedMediaType, "JPG 또는 PNG 이미지만 업로드할 수 있습니다.")
		return
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("photo request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
