package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/closing"
	"github.com/ecofacility/facility-erp/internal/documents"
	"github.com/ecofacility/facility-erp/internal/notifications"
	"github.com/ecofacility/facility-erp/internal/observability"
	"github.com/ecofacility/facility-erp/internal/photos"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/pricing"
	revenuehttp "github.com/ecofacility/facility-erp/internal/revenue/http"
	"github.com/ecofacility/facility-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	Metrics             *observability.Metrics
	AuthHandler         *auth.Handler
	RevenueHandler      *revenuehttp.Handler
	PricingHandler      *pricing.Handler
	ClosingHandler      *closing.Handler
	NotificationHandler *notifications.Handler
	DocumentHandler     *documents.Handler
	PhotoHandler        *photos.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with the API surface.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "요청한 경로를 찾을 수 없습니다.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "허용되지 않는 메서드입니다.")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(api chi.Router) {
		if params.AuthHandler != nil {
			api.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.RevenueHandler != nil {
			api.Route("/dashboard", params.RevenueHandler.MountDashboard)
		}
		api.Route("/revenue", func(r chi.Router) {
			if params.RevenueHandler != nil {
				params.RevenueHandler.MountCalculate(r)
			}
			if params.PricingHandler != nil {
				params.PricingHandler.MountRoutes(r)
			}
		})
		if params.ClosingHandler != nil {
			api.Route("/admin/monthly-closing", params.ClosingHandler.MountRoutes)
		}
		if params.NotificationHandler != nil {
			api.Route("/notifications", params.NotificationHandler.MountRoutes)
			api.Route("/admin/notifications", params.NotificationHandler.MountAdmin)
		}
		if params.DocumentHandler != nil {
			api.Route("/documents", params.DocumentHandler.MountRoutes)
		}
		if params.PhotoHandler != nil {
			api.Route("/businesses/{id}/photos", params.PhotoHandler.MountRoutes)
		}
	})

	return r
}
