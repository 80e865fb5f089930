package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Manager is the pricing surface used by the HTTP handler.
type Manager interface {
	ListGovernment(ctx context.Context, f ListFilter) ([]GovernmentPrice, error)
	ListManufacturer(ctx context.Context, f ListFilter) ([]ManufacturerPrice, error)
	ListInstallation(ctx context.Context, f ListFilter) ([]InstallationCost, error)
	ListSurvey(ctx context.Context, f ListFilter) ([]SurveyCost, error)
	ListCommission(ctx context.Context, f ListFilter) ([]CommissionSetting, error)
	History(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error)
	CreateGovernment(ctx context.Context, in GovernmentInput, actor Actor) (Saved[GovernmentPrice], error)
	CreateManufacturer(ctx context.Context, in ManufacturerInput, actor Actor) (Saved[ManufacturerPrice], error)
	CreateInstallation(ctx context.Context, in InstallationInput, actor Actor) (Saved[InstallationCost], error)
	CreateSurvey(ctx context.Context, in SurveyInput, actor Actor) (Saved[SurveyCost], error)
	CreateCommission(ctx context.Context, in CommissionInput, actor Actor) (Saved[CommissionSetting], error)
	Deactivate(ctx context.Context, table Table, id string, actor Actor) error
}

var _ Manager = (*Service)(nil)

// Handler exposes pricing administration endpoints.
type Handler struct {
	logger  *slog.Logger
	manager Manager
	guard   auth.Middleware
}

// NewHandler constructs a new Handler.
func NewHandler(logger *slog.Logger, manager Manager, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, guard: guard}
}

// MountRoutes registers pricing routes, expected under /api/revenue.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.guard.Require(auth.LevelManager)
	write := h.guard.Require(auth.LevelAdmin)

	r.Route("/government-pricing", func(r chi.Router) {
		r.With(read).Get("/", listHandler(h, "pricing", h.manager.ListGovernment))
		r.With(write).Post("/", createHandler(h, TableGovernment, "pricing", h.manager.CreateGovernment))
		h.mountDelete(r, write, TableGovernment)
	})
	r.Route("/manufacturer-pricing", func(r chi.Router) {
		r.With(read).Get("/", listHandler(h, "pricing", h.manager.ListManufacturer))
		r.With(write).Post("/", createHandler(h, TableManufacturer, "pricing", h.manager.CreateManufacturer))
		h.mountDelete(r, write, TableManufacturer)
	})
	r.Route("/installation-cost", func(r chi.Router) {
		r.With(read).Get("/", listHandler(h, "costs", h.manager.ListInstallation))
		r.With(write).Post("/", createHandler(h, TableInstallation, "cost", h.manager.CreateInstallation))
		h.mountDelete(r, write, TableInstallation)
	})
	r.Route("/survey-costs", func(r chi.Router) {
		r.With(read).Get("/", listHandler(h, "costs", h.manager.ListSurvey))
		r.With(write).Post("/", createHandler(h, TableSurvey, "cost", h.manager.CreateSurvey))
		h.mountDelete(r, write, TableSurvey)
	})
	r.Route("/sales-office-settings", func(r chi.Router) {
		r.With(read).Get("/", listHandler(h, "settings", h.manager.ListCommission))
		r.With(write).Post("/", createHandler(h, TableCommission, "settings", h.manager.CreateCommission))
		h.mountDelete(r, write, TableCommission)
	})
	r.With(write).Get("/pricing-history", h.handleHistory)
}

func (h *Handler) mountDelete(r chi.Router, guard func(http.Handler) http.Handler, table Table) {
	handler := h.handleDelete(table)
	r.With(guard).Delete("/", handler)
	r.With(guard).Delete("/{id}", handler)
}

func filterFromQuery(r *http.Request) ListFilter {
	q := r.URL.Query()
	return ListFilter{
		IncludeInactive: q.Get("include_inactive") == "true",
		EquipmentType:   q.Get("equipment_type"),
		Manufacturer:    q.Get("manufacturer"),
		SurveyType:      q.Get("survey_type"),
		SalesOffice:     q.Get("sales_office"),
	}
}

func listHandler[T any](h *Handler, key string, fetch func(context.Context, ListFilter) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := fetch(r.Context(), filterFromQuery(r))
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		if rows == nil {
			rows = []T{}
		}
		httpx.OK(w, map[string]any{key: rows, "total_count": len(rows)})
	}
}

func createHandler[In, T any](h *Handler, table Table, key string, save func(context.Context, In, Actor) (Saved[T], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
		saved, err := save(r.Context(), in, actorFrom(r))
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		verb := "생성"
		if saved.IsUpdate {
			verb = "수정"
		}
		httpx.JSON(w, http.StatusOK, httpx.Envelope{
			Success: true,
			Data:    map[string]any{key: saved.Row, "is_update": saved.IsUpdate},
			Message: fmt.Sprintf("%s%s 성공적으로 %s되었습니다.", table.Label(), subjectParticle(table.Label()), verb),
		})
	}
}

type deleteRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handleDelete(table Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			id = r.URL.Query().Get("id")
		}
		if id == "" && r.ContentLength != 0 {
			var req deleteRequest
			if err := httpx.DecodeJSON(r, &req); err != nil {
				httpx.RespondError(w, err)
				return
			}
			id = req.ID
		}
		if err := h.manager.Deactivate(r.Context(), table, id, actorFrom(r)); err != nil {
			h.handleError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, httpx.Envelope{
			Success: true,
			Message: fmt.Sprintf("%s%s 성공적으로 삭제되었습니다.", table.Label(), subjectParticle(table.Label())),
		})
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.manager.History(r.Context(), HistoryFilter{
		TableName: r.URL.Query().Get("table_name"),
		RecordID:  r.URL.Query().Get("record_id"),
		Limit:     limit,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	httpx.OK(w, map[string]any{"history": entries, "total_count": len(entries)})
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("pricing request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	} else if errors.Is(err, httpx.ErrValidation) {
		h.logger.Debug("pricing validation", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorFrom(r *http.Request) Actor {
	p, _ := auth.PrincipalFromContext(r.Context())
	return Actor{UserID: p.UserID, Name: p.Name, PermissionLevel: p.PermissionLevel}
}

// subjectParticle picks 이 or 가 depending on whether the last syllable has a final consonant.
func subjectParticle(word string) string {
	last, _ := utf8.DecodeLastRuneInString(word)
	if last >= 0xAC00 && last <= 0xD7A3 && (last-0xAC00)%28 != 0 {
		return "이"
	}
	return "가"
}
