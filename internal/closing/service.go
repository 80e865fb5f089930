package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/revenue"
)

const (
	// DefaultPageSize is the number of months returned when no limit is given.
	DefaultPageSize = 12
	maxPageSize     = 120
)

// Store is the persistence surface of the closing service.
type Store interface {
	WithTx(ctx context.Context, fn func(Store) error) error
	List(ctx context.Context, f ListFilter) ([]Closing, int, error)
	Get(ctx context.Context, id string) (Closing, error)
	MonthTotals(ctx context.Context, p Period) (Totals, error)
	TotalsByMonth(ctx context.Context, from, to Period) (map[Period]Totals, error)
	Unclassified(ctx context.Context) (Totals, error)
	Summary(ctx context.Context) (Summary, error)
	MiscTotal(ctx context.Context, p Period) (float64, error)
	Upsert(ctx context.Context, p Period, t Totals, misc float64) (Closing, error)
	MiscCosts(ctx context.Context, closingID string) ([]MiscCost, error)
	InsertMiscCost(ctx context.Context, closingID string, in MiscCostInput, actorID string) (MiscCost, error)
	RefreshMisc(ctx context.Context, closingID string) (Closing, error)
	InstalledIn(ctx context.Context, p Period) ([]InstalledBusiness, error)
	HasCalculation(ctx context.Context, businessID string) (bool, error)
}

var _ Store = (*Repository)(nil)

// Calculator runs and saves per-business revenue calculations.
type Calculator interface {
	Calculate(ctx context.Context, req revenue.CalculateRequest, actor auth.Principal) (revenue.CalculateResult, error)
}

// Invalidator drops cached dashboard aggregates.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service computes and lists monthly closings.
type Service struct {
	store      Store
	calculator Calculator
	cache      Invalidator
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store, calculator Calculator, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, calculator: calculator, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns a page of closings whose aggregates are recomputed from the
// saved calculations, along with the overall and unclassified summaries.
func (s *Service) List(ctx context.Context, f ListFilter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}

	var (
		page         = Page{Pagination: Pagination{Page: f.Page, Limit: f.Limit}}
		unclassified Totals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		page.Closings, page.Pagination.Total, err = s.store.List(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		page.Summary, err = s.store.Summary(gctx)
		return err
	})
	g.Go(func() (err error) {
		unclassified, err = s.store.Unclassified(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Page{}, err
	}
	page.Unclassified = UnclassifiedFrom(unclassified)
	page.Pagination.TotalPages = (page.Pagination.Total + f.Limit - 1) / f.Limit
	if page.Closings == nil {
		page.Closings = []Closing{}
	}
	if len(page.Closings) == 0 {
		return page, nil
	}

	// Closings arrive newest first.
	newest := page.Closings[0].Period()
	oldest := page.Closings[len(page.Closings)-1].Period()
	live, err := s.store.TotalsByMonth(ctx, oldest, newest)
	if err != nil {
		return Page{}, err
	}
	for i := range page.Closings {
		page.Closings[i].Apply(live[page.Closings[i].Period()])
	}
	return page, nil
}

// Compute aggregates the saved calculations of p, deducts miscellaneous costs
// and upserts the closing row.
func (s *Service) Compute(ctx context.Context, p Period) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	var (
		totals Totals
		misc   float64
		saved  Closing
	)
	err := s.store.WithTx(ctx, func(tx Store) error {
		var err error
		if totals, err = tx.MonthTotals(ctx, p); err != nil {
			return err
		}
		if misc, err = tx.MiscTotal(ctx, p); err != nil {
			return err
		}
		saved, err = tx.Upsert(ctx, p, totals, misc)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("monthly closing computed",
		slog.String("period", p.String()),
		slog.Int("businesses", totals.Count),
		slog.Float64("net_profit", saved.NetProfit))
	s.invalidate(ctx)

	return Result{
		Closing:       saved,
		BusinessCount: totals.Count,
		RevenueBreakdown: Breakdown{
			TotalRevenue:      totals.Revenue,
			TotalCost:         totals.Cost,
			SalesCommission:   totals.Commission,
			SurveyCosts:       totals.Survey,
			InstallationCosts: totals.Installation,
			MiscCosts:         misc,
			NetProfit:         totals.Net(misc),
		},
	}, nil
}

// RecomputeRecent recomputes the current and previous month.
func (s *Service) RecomputeRecent(ctx context.Context) ([]Result, error) {
	current := PeriodOf(s.now().UTC())
	var out []Result
	for _, p := range []Period{current.Previous(), current} {
		res, err := s.Compute(ctx, p)
		if err != nil {
			return out, fmt.Errorf("closing: recompute %s: %w", p, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// AutoCalculate saves a revenue calculation for every business installed in
// p, dated on its installation day, then computes the closing. Businesses
// that already have a calculation are skipped unless force is set.
func (s *Service) AutoCalculate(ctx context.Context, p Period, force bool, actor auth.Principal) (AutoResult, error) {
	if err := p.Validate(); err != nil {
		return AutoResult{}, err
	}
	if !actor.Allows(auth.LevelAdmin) {
		return AutoResult{}, fmt.Errorf("closing: auto calculate: %w", httpx.ErrForbidden)
	}
	businesses, err := s.store.InstalledIn(ctx, p)
	if err != nil {
		return AutoResult{}, err
	}
	result := AutoResult{TotalBusinesses: len(businesses), Businesses: []Outcome{}}
	if len(businesses) == 0 {
		return result, nil
	}

	save := true
	for _, b := range businesses {
		outcome := Outcome{BusinessID: b.ID, BusinessName: b.Name}
		if !force {
			exists, err := s.store.HasCalculation(ctx, b.ID)
			if err != nil {
				return AutoResult{}, err
			}
			if exists {
				outcome.Status, outcome.Message = OutcomeSkipped, "이미 계산됨"
				result.Businesses = append(result.Businesses, outcome)
				continue
			}
		}
		calc, err := s.calculator.Calculate(ctx, revenue.CalculateRequest{
			BusinessID:      b.ID,
			CalculationDate: b.InstallationDate.Format(time.DateOnly),
			SaveResult:      &save,
		}, actor)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return AutoResult{}, err
			}
			s.logger.Warn("auto calculation failed",
				slog.String("business_id", b.ID),
				slog.Any("error", err))
			outcome.Status, outcome.Message = OutcomeFailed, "계산 중 오류 발생"
			result.FailedBusinesses++
		case calc.Calculation.TotalRevenue == 0:
			outcome.Status, outcome.Message = OutcomeFailed, "매출 계산 결과 없음 (원가 데이터 확인 필요)"
			result.FailedBusinesses++
		default:
			outcome.Status, outcome.Message = OutcomeSuccess, "계산 완료"
			outcome.Revenue = calc.Calculation.TotalRevenue
			result.CalculatedBusinesses++
		}
		result.Businesses = append(result.Businesses, outcome)
	}

	closing, err := s.Compute(ctx, p)
	if err != nil {
		s.logger.Error("auto calculation aggregate failed",
			slog.String("period", p.String()),
			slog.Any("error", err))
		result.AggregationWarning = "월 마감 집계 중 오류가 발생했습니다."
		return result, nil
	}
	result.Closing = &closing
	return result, nil
}

// MiscCosts lists the costs of a closing and their total.
func (s *Service) MiscCosts(ctx context.Context, closingID string) ([]MiscCost, float64, error) {
	costs, err := s.store.MiscCosts(ctx, closingID)
	if err != nil {
		return nil, 0, err
	}
	var total float64
	for _, c := range costs {
		total += c.Amount
	}
	return costs, total, nil
}

// AddMiscCost records a cost and refreshes the closing's net profit.
func (s *Service) AddMiscCost(ctx context.Context, closingID string, in MiscCostInput, actor auth.Principal) (MiscCost, Closing, error) {
	if err := httpx.Validate(in); err != nil {
		return MiscCost{}, Closing{}, ErrInvalidMiscCost
	}
	var (
		cost    MiscCost
		updated Closing
	)
	err := s.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.Get(ctx, closingID); err != nil {
			return err
		}
		var err error
		if cost, err = tx.InsertMiscCost(ctx, closingID, in, actor.UserID); err != nil {
			return err
		}
		updated, err = tx.RefreshMisc(ctx, closingID)
		return err
	})
	if err != nil {
		return MiscCost{}, Closing{}, err
	}
	s.invalidate(ctx)
	return cost, updated, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("dashboard cache bump failed", slog.Any("error", err))
	}
}
