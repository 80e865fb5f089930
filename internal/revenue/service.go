package revenue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/pricing"
)

// Default and maximum page sizes of the saved calculation listing.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// CatalogResolver resolves the prices in force on a date.
type CatalogResolver interface {
	Resolve(ctx context.Context, date time.Time) (*pricing.Catalog, error)
}

// Store is the persistence surface used by the Service.
type Store interface {
	SurveyAdjustments(ctx context.Context, businessIDs []string, asOf time.Time) (map[string]float64, error)
	RevenueTargets(ctx context.Context, keys []string) (map[string]float64, error)
	AdditionalInstallation(ctx context.Context, businessID string, asOf time.Time) (AdditionalInstallation, error)
	OperatingAdjustment(ctx context.Context, businessID string) (*OperatingAdjustment, error)
	SaveCalculation(ctx context.Context, in SaveInput) (SavedCalculation, error)
	ListCalculations(ctx context.Context, f CalculationFilter) ([]SavedCalculation, int, error)
}

var _ Store = (*Repository)(nil)

// Service orchestrates revenue dashboards and per-business calculations.
type Service struct {
	businesses business.Repository
	catalog    CatalogResolver
	store      Store
	cache      *Cache
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires a revenue service. cache may be nil.
func NewService(businesses business.Repository, catalog CatalogResolver, store Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		businesses: businesses,
		catalog:    catalog,
		store:      store,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
	}
}

// WithNow overrides the clock, primarily for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) today() time.Time {
	n := s.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// Dashboard returns the revenue aggregate for q, served from the cache when
// possible.
func (s *Service) Dashboard(ctx context.Context, q Query) (Dashboard, error) {
	today := s.today()
	parts := append(q.CacheKey(), today.Format(time.DateOnly))
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("dashboard cache version unavailable", slog.Any("error", err))
		return s.computeDashboard(ctx, q, today)
	}
	return FetchJSON(ctx, s.cache, key, func(ctx context.Context) (Dashboard, error) {
		return s.computeDashboard(ctx, q, today)
	})
}

func (s *Service) computeDashboard(ctx context.Context, q Query, today time.Time) (Dashboard, error) {
	period := ResolvePeriod(q, today)
	filter := business.Filter{
		Manufacturer:   q.Manufacturer,
		SalesOffice:    q.SalesOffice,
		ProgressStatus: q.ProgressStatus,
		Region:         q.Office,
	}
	if period.Mode == ModeRange {
		filter.InstalledFrom = period.InstalledFrom
		filter.InstalledTo = period.InstalledTo
	}

	var (
		records []business.Record
		cat     *pricing.Catalog
		targets map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		records, err = s.businesses.ListInstalled(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		cat, err = s.catalog.Resolve(gctx, today)
		return err
	})
	g.Go(func() error {
		t, err := s.store.RevenueTargets(gctx, period.Keys)
		if err != nil {
			s.logger.Warn("dashboard targets unavailable", slog.Any("error", err))
			return nil
		}
		targets = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("revenue: dashboard fetch: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	adjustments, err := s.store.SurveyAdjustments(ctx, ids, today)
	if err != nil {
		return Dashboard{}, err
	}

	out := Build(period, records, cat, adjustments, targets)
	s.logger.Debug("dashboard computed",
		slog.String("mode", string(period.Mode)),
		slog.String("granularity", string(period.Granularity)),
		slog.Int("businesses", len(records)),
		slog.Int("buckets", len(out.Buckets)))
	return out, nil
}

// CalculateRequest asks for the detailed calculation of one business.
type CalculateRequest struct {
	BusinessID      string `json:"business_id" validate:"required"`
	CalculationDate string `json:"calculation_date" validate:"omitempty,datetime=2006-01-02"`
	SaveResult      *bool  `json:"save_result"`
}

// CalculateResult is the response of a detailed calculation.
type CalculateResult struct {
	Calculation Calculation       `json:"calculation"`
	SavedRecord *SavedCalculation `json:"saved_record"`
	Summary     CalculateSummary  `json:"summary"`
}

// CalculateSummary carries display margins.
type CalculateSummary struct {
	EquipmentCount int    `json:"equipment_count"`
	ProfitMargin   string `json:"profit_margin"`
	NetMargin      string `json:"net_margin"`
}

// Calculate runs the detailed policy for one business and, when requested by
// an admin, stores the result.
func (s *Service) Calculate(ctx context.Context, req CalculateRequest, actor auth.Principal) (CalculateResult, error) {
	if err := httpx.Validate(req); err != nil {
		return CalculateResult{}, err
	}
	date := s.today()
	if req.CalculationDate != "" {
		parsed, err := time.Parse(time.DateOnly, req.CalculationDate)
		if err != nil {
			return CalculateResult{}, fmt.Errorf("%w: calculation_date", httpx.ErrValidation)
		}
		date = parsed
	}

	rec, err := s.businesses.Get(ctx, req.BusinessID)
	if err != nil {
		return CalculateResult{}, err
	}

	in := DetailInput{Business: rec}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Catalog, err = s.catalog.Resolve(gctx, date)
		return err
	})
	g.Go(func() (err error) {
		in.AdditionalInstallation, err = s.store.AdditionalInstallation(gctx, rec.ID, date)
		return err
	})
	g.Go(func() (err error) {
		in.Adjustment, err = s.store.OperatingAdjustment(gctx, rec.ID)
		return err
	})
	g.Go(func() error {
		adj, err := s.store.SurveyAdjustments(gctx, []string{rec.ID}, date)
		if err != nil {
			return err
		}
		in.SurveyAdjustments = adj[rec.ID]
		return nil
	})
	if err := g.Wait(); err != nil {
		return CalculateResult{}, fmt.Errorf("revenue: calculate %s: %w", rec.ID, err)
	}

	calc := Calculate(in)
	result := CalculateResult{
		Calculation: calc,
		Summary: CalculateSummary{
			EquipmentCount: calc.EquipmentCount(),
			ProfitMargin:   percent(calc.GrossProfit, calc.BaseRevenue),
			NetMargin:      percent(calc.NetProfit, calc.BaseRevenue),
		},
	}

	save := req.SaveResult == nil || *req.SaveResult
	switch {
	case save && actor.Allows(auth.LevelAdmin):
		saved, err := s.store.SaveCalculation(ctx, SaveInput{
			Calculation:  calc,
			Snapshot:     in.Catalog.Snapshot(rec.Manufacturer),
			CalculatedBy: actor.UserID,
		})
		if err != nil {
			return CalculateResult{}, err
		}
		result.SavedRecord = &saved
		s.logger.Info("revenue calculation saved",
			slog.String("business_id", rec.ID),
			slog.String("calculation_date", calc.CalculationDate),
			slog.String("user_id", actor.UserID))
	case save:
		s.logger.Warn("revenue calculation not saved: insufficient permission",
			slog.String("business_id", rec.ID),
			slog.Int("level", actor.PermissionLevel),
			slog.Int("required", auth.LevelAdmin))
	}
	return result, nil
}

// ListCalculations pages through saved calculations.
func (s *Service) ListCalculations(ctx context.Context, f CalculationFilter) (CalculationPage, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	rows, total, err := s.store.ListCalculations(ctx, f)
	if err != nil {
		return CalculationPage{}, err
	}
	if rows == nil {
		rows = []SavedCalculation{}
	}
	page := CalculationPage{
		Calculations: rows,
		Pagination: Pagination{
			TotalCount: total,
			Offset:     f.Offset,
			Limit:      f.Limit,
			HasMore:    f.Offset+len(rows) < total,
		},
	}
	for _, row := range rows {
		page.Summary.TotalRevenue += row.TotalRevenue
		page.Summary.TotalProfit += row.NetProfit
	}
	page.Summary.AverageProfitMargin = percent(page.Summary.TotalProfit, page.Summary.TotalRevenue)
	return page, nil
}

// InvalidateDashboard drops every cached dashboard aggregate.
func (s *Service) InvalidateDashboard(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// percent formats part/whole as "12.34%", or "0%" when whole is not positive.
func percent(part, whole float64) string {
	if whole <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", part/whole*100)
}
