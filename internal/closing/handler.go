package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Manager is the closing surface used by the HTTP handler.
type Manager interface {
	List(ctx context.Context, f ListFilter) (Page, error)
	Compute(ctx context.Context, p Period) (Result, error)
	AutoCalculate(ctx context.Context, p Period, force bool, actor auth.Principal) (AutoResult, error)
	MiscCosts(ctx context.Context, closingID string) ([]MiscCost, float64, error)
	AddMiscCost(ctx context.Context, closingID string, in MiscCostInput, actor auth.Principal) (MiscCost, Closing, error)
}

var _ Manager = (*Service)(nil)

// Handler exposes monthly closing endpoints.
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

// MountRoutes registers closing routes, expected under /api/admin/monthly-closing.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.guard.Require(auth.LevelGeneral)
	write := h.guard.Require(auth.LevelAdmin)

	r.With(read).Get("/", h.handleList)
	r.With(write).Post("/", h.handleCompute)
	r.With(write).Post("/auto-calculate", h.handleAutoCalculate)
	r.With(read).Get("/{id}/misc-costs", h.handleListMisc)
	r.With(write).Post("/{id}/misc-costs", h.handleAddMisc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{}
	f.Year, _ = strconv.Atoi(q.Get("year"))
	f.Month, _ = strconv.Atoi(q.Get("month"))
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	page, err := h.manager.List(r.Context(), f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.OK(w, page)
}

type computeRequest struct {
	Year  int  `json:"year"`
	Month int  `json:"month"`
	Force bool `json:"force"`
}

func (h *Handler) decodePeriod(w http.ResponseWriter, r *http.Request) (computeRequest, bool) {
	var req computeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return req, false
	}
	if err := (Period{Year: req.Year, Month: req.Month}).Validate(); err != nil {
		h.handleError(w, r, err)
		return req, false
	}
	return req, true
}

func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePeriod(w, r)
	if !ok {
		return
	}
	res, err := h.manager.Compute(r.Context(), Period{Year: req.Year, Month: req.Month})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.OK(w, res)
}

func (h *Handler) handleAutoCalculate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePeriod(w, r)
	if !ok {
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	res, err := h.manager.AutoCalculate(r.Context(), Period{Year: req.Year, Month: req.Month}, req.Force, principal)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	env := httpx.Envelope{Success: true, Data: res}
	if res.TotalBusinesses == 0 {
		env.Message = fmt.Sprintf("%d년 %d월에 설치 완료된 사업장이 없습니다.", req.Year, req.Month)
	}
	httpx.JSON(w, http.StatusOK, env)
}

func (h *Handler) handleListMisc(w http.ResponseWriter, r *http.Request) {
	costs, total, err := h.manager.MiscCosts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.OK(w, map[string]any{"miscCosts": costs, "total": total})
}

func (h *Handler) handleAddMisc(w http.ResponseWriter, r *http.Request) {
	var in MiscCostInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	cost, updated, err := h.manager.AddMiscCost(r.Context(), chi.URLParam(r, "id"), in, principal)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.OK(w, map[string]any{"miscCost": cost, "updatedClosing": updated})
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidPeriod):
		httpx.Fail(w, http.StatusBadRequest, "유효한 연도와 월을 입력해주세요.")
		return
	case errors.Is(err, ErrInvalidMiscCost):
		httpx.Fail(w, http.StatusBadRequest, "항목명과 유효한 금액을 입력해주세요.")
		return
	case errors.Is(err, httpx.ErrNotFound):
		httpx.Fail(w, http.StatusNotFound, "마감 데이터를 찾을 수 없습니다.")
		return
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("closing request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
