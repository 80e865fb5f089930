package revenuehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// MountDashboard registers dashboard routes, expected under /api/dashboard.
func (h *Handler) MountDashboard(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "내보내기 요청이 너무 많습니다.")
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(h.guard.Require(auth.LevelGeneral))
		gr.Get("/revenue", h.handleDashboard)
		gr.With(limiter).Get("/revenue/export.csv", h.handleCSV)
		gr.With(limiter).Get("/revenue/export.xlsx", h.handleXLSX)
	})
}

// MountCalculate registers calculation routes, expected under /api/revenue.
func (h *Handler) MountCalculate(r chi.Router) {
	if h == nil {
		return
	}
	r.With(h.guard.Require(auth.LevelGeneral)).Post("/calculate", h.handleCalculate)
	r.With(h.guard.Require(auth.LevelGeneral)).Get("/calculate", h.handleListCalculations)
}

func rateLimitKey(r *http.Request) (string, error) {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok && p.UserID != "" {
		return "user:" + p.UserID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
