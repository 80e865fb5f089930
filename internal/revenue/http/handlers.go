package revenuehttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/revenue"
	"github.com/ecofacility/facility-erp/internal/revenue/export"
)

// Service defines the revenue operations used by the handler.
type Service interface {
	Dashboard(ctx context.Context, q revenue.Query) (revenue.Dashboard, error)
	Calculate(ctx context.Context, req revenue.CalculateRequest, actor auth.Principal) (revenue.CalculateResult, error)
	ListCalculations(ctx context.Context, f revenue.CalculationFilter) (revenue.CalculationPage, error)
}

var _ Service = (*revenue.Service)(nil)

// Handler serves the revenue dashboard and per-business calculations.
type Handler struct {
	logger  *slog.Logger
	service Service
	guard   auth.Middleware
}

// NewHandler builds a revenue HTTP handler.
func NewHandler(logger *slog.Logger, service Service, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

func queryFromRequest(r *http.Request) revenue.Query {
	q := r.URL.Query()
	months, _ := strconv.Atoi(q.Get("months"))
	year, _ := strconv.Atoi(q.Get("year"))
	return revenue.Query{
		Months:         months,
		StartDate:      strings.TrimSpace(q.Get("startDate")),
		EndDate:        strings.TrimSpace(q.Get("endDate")),
		Year:           year,
		Office:         strings.TrimSpace(q.Get("office")),
		Manufacturer:   strings.TrimSpace(q.Get("manufacturer")),
		SalesOffice:    strings.TrimSpace(q.Get("salesOffice")),
		ProgressStatus: strings.TrimSpace(q.Get("progressStatus")),
	}
}

type dashboardResponse struct {
	Success     bool                `json:"success"`
	Data        []revenue.Bucket    `json:"data"`
	Summary     revenue.Summary     `json:"summary"`
	Granularity revenue.Granularity `json:"granularity,omitempty"`
	Mode        revenue.Mode        `json:"mode,omitempty"`
	Error       string              `json:"error,omitempty"`
}

func (h *Handler) loadDashboard(w http.ResponseWriter, r *http.Request) (revenue.Dashboard, bool) {
	q := queryFromRequest(r)
	if err := q.Validate(); err != nil {
		httpx.JSON(w, http.StatusBadRequest, dashboardResponse{Error: err.Error(), Data: []revenue.Bucket{}})
		return revenue.Dashboard{}, false
	}
	d, err := h.service.Dashboard(r.Context(), q)
	if err != nil {
		h.logger.Error("revenue dashboard failed",
			slog.Int("year", q.Year),
			slog.String("start", q.StartDate),
			slog.String("end", q.EndDate),
			slog.Any("error", err))
		// Failures keep the dashboard shape so clients can render an empty chart.
		httpx.JSON(w, http.StatusInternalServerError, dashboardResponse{
			Error: "매출 데이터를 불러오는 중 오류가 발생했습니다.",
			Data:  []revenue.Bucket{},
		})
		return revenue.Dashboard{}, false
	}
	if d.Buckets == nil {
		d.Buckets = []revenue.Bucket{}
	}
	return d, true
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDashboard(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, dashboardResponse{
		Success:     true,
		Data:        d.Buckets,
		Summary:     d.Summary,
		Granularity: d.Granularity,
		Mode:        d.Mode,
	})
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDashboard(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteDashboardCSV(&buf, d); err != nil {
		h.logger.Error("revenue csv export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment("csv"))
	// BOM so spreadsheet tools detect UTF-8 Korean headers.
	_, _ = w.Write([]byte("\xEF\xBB\xBF"))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleXLSX(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDashboard(w, r)
	if !ok {
		return
	}
	data, err := export.DashboardWorkbook(d)
	if err != nil {
		h.logger.Error("revenue xlsx export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment("xlsx"))
	_, _ = w.Write(data)
}

func attachment(ext string) string {
	return fmt.Sprintf("attachment; filename=revenue-dashboard-%s.%s", time.Now().Format("20060102"), ext)
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req revenue.CalculateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	result, err := h.service.Calculate(r.Context(), req, principal)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Envelope{
		Success: true,
		Data:    result,
		Message: "매출 계산이 완료되었습니다.",
	})
}

func (h *Handler) handleListCalculations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := revenue.CalculationFilter{
		BusinessID:  q.Get("business_id"),
		SalesOffice: q.Get("sales_office"),
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	for param, target := range map[string]**time.Time{"start_date": &f.StartDate, "end_date": &f.EndDate} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %s must be YYYY-MM-DD", httpx.ErrValidation, param))
			return
		}
		*target = &t
	}
	page, err := h.service.ListCalculations(r.Context(), f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httpx.OK(w, page)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("revenue request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
