package revenue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/pricing"
)

type stubBusinesses struct {
	mu      sync.Mutex
	records []business.Record
	err     error
	calls   int
	filter  business.Filter
}

func (s *stubBusinesses) ListInstalled(_ context.Context, f business.Filter) ([]business.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.filter = f
	return s.records, s.err
}

func (s *stubBusinesses) Get(_ context.Context, id string) (business.Record, error) {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return business.Record{}, fmt.Errorf("business %s: %w", id, httpx.ErrNotFound)
}

type stubResolver struct {
	catalog func(time.Time) *pricing.Catalog
}

func (s stubResolver) Resolve(_ context.Context, d time.Time) (*pricing.Catalog, error) {
	return s.catalog(d), nil
}

type stubStore struct {
	mu          sync.Mutex
	adjustments map[string]float64
	targets     map[string]float64
	targetErr   error
	saved       []SaveInput
	listed      []SavedCalculation
	total       int
	filter      CalculationFilter
}

func (s *stubStore) SurveyAdjustments(context.Context, []string, time.Time) (map[string]float64, error) {
	return s.adjustments, nil
}

func (s *stubStore) RevenueTargets(context.Context, []string) (map[string]float64, error) {
	return s.targets, s.targetErr
}

func (s *stubStore) AdditionalInstallation(context.Context, string, time.Time) (AdditionalInstallation, error) {
	return AdditionalInstallation{}, nil
}

func (s *stubStore) OperatingAdjustment(context.Context, string) (*OperatingAdjustment, error) {
	return nil, nil
}

func (s *stubStore) SaveCalculation(_ context.Context, in SaveInput) (SavedCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, in)
	return SavedCalculation{ID: "calc-1", BusinessID: in.Calculation.BusinessID, NetProfit: in.Calculation.NetProfit}, nil
}

func (s *stubStore) ListCalculations(_ context.Context, f CalculationFilter) ([]SavedCalculation, int, error) {
	s.filter = f
	return s.listed, s.total, nil
}

func newTestService(t *testing.T, businesses *stubBusinesses, store *stubStore, cache *Cache) *Service {
	t.Helper()
	resolver := stubResolver{catalog: func(d time.Time) *pricing.Catalog {
		return phCatalog(d.Format(time.DateOnly))
	}}
	svc := NewService(businesses, resolver, store, cache, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC) })
	return svc
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestDashboardAggregatesAndAttachesTargets(t *testing.T) {
	businesses := &stubBusinesses{records: []business.Record{
		installed("a", "2025-03-02", business.Equipment{PHMeter: 2}),
	}}
	store := &stubStore{targets: map[string]float64{"2025-03": 120000}}
	svc := newTestService(t, businesses, store, nil)

	d, err := svc.Dashboard(context.Background(), Query{Year: 2025, Office: "서울시", SalesOffice: "부산"})
	require.NoError(t, err)
	require.Len(t, d.Buckets, 12)

	march := d.Buckets[2]
	assert.Equal(t, 60000.0, march.Profit)
	assert.Equal(t, 30.0, march.ProfitRate)
	require.NotNil(t, march.AchievementRate)
	assert.Equal(t, 50.0, *march.AchievementRate)
	assert.Equal(t, 60000.0, d.Summary.TotalProfit)
	assert.Equal(t, 5000.0, d.Summary.AvgProfit)

	assert.Equal(t, "서울시", businesses.filter.Region)
	assert.Equal(t, "부산", businesses.filter.SalesOffice)
	assert.Nil(t, businesses.filter.InstalledFrom, "year mode does not filter by date in SQL")
}

func TestDashboardRangeModeFiltersInstallationDates(t *testing.T) {
	businesses := &stubBusinesses{}
	svc := newTestService(t, businesses, &stubStore{}, nil)

	d, err := svc.Dashboard(context.Background(), Query{StartDate: "2025-03-01", EndDate: "2025-03-05"})
	require.NoError(t, err)
	assert.Equal(t, Daily, d.Granularity)
	assert.Len(t, d.Buckets, 5)
	require.NotNil(t, businesses.filter.InstalledFrom)
	assert.Equal(t, date("2025-03-05"), *businesses.filter.InstalledTo)
}

func TestDashboardIgnoresTargetFailure(t *testing.T) {
	businesses := &stubBusinesses{}
	store := &stubStore{targetErr: errors.New("relation dashboard_targets does not exist")}
	svc := newTestService(t, businesses, store, nil)

	d, err := svc.Dashboard(context.Background(), Query{Year: 2025})
	require.NoError(t, err)
	for _, b := range d.Buckets {
		assert.Nil(t, b.Target)
	}
}

func TestDashboardFailsWhenBusinessQueryFails(t *testing.T) {
	businesses := &stubBusinesses{err: errors.New("connection reset")}
	svc := newTestService(t, businesses, &stubStore{}, nil)

	_, err := svc.Dashboard(context.Background(), Query{Year: 2025})
	require.Error(t, err)
}

func TestDashboardIsCachedUntilBumped(t *testing.T) {
	cache, _ := newTestCache(t)
	var results []string
	cache.WithObserver(func(result string) { results = append(results, result) })

	businesses := &stubBusinesses{records: []business.Record{installed("a", "2025-03-02", business.Equipment{PHMeter: 1})}}
	svc := newTestService(t, businesses, &stubStore{}, cache)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx, Query{Year: 2025})
	require.NoError(t, err)
	second, err := svc.Dashboard(ctx, Query{Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, businesses.calls)
	assert.Equal(t, []string{"miss", "hit"}, results)

	require.NoError(t, svc.InvalidateDashboard(ctx))
	_, err = svc.Dashboard(ctx, Query{Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 2, businesses.calls)
}

func TestCacheVersionAndBump(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "dashboard", "revenue")
	require.NoError(t, err)
	assert.Equal(t, "dashboard:revenue:v1", key)

	require.NoError(t, cache.Bump(ctx))
	got, err := mr.Get(cacheVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	key, err = cache.BuildKey(ctx, "dashboard", "revenue")
	require.NoError(t, err)
	assert.Equal(t, "dashboard:revenue:v2", key)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var c *Cache
	v, err := FetchJSON(context.Background(), c, "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.NoError(t, c.Bump(context.Background()))
}

func TestCalculateSavesForAdmins(t *testing.T) {
	businesses := &stubBusinesses{records: []business.Record{installed("b1", "2025-03-02", business.Equipment{PHMeter: 2})}}
	store := &stubStore{}
	svc := newTestService(t, businesses, store, nil)

	admin := auth.Principal{UserID: "u-1", PermissionLevel: auth.LevelAdmin}
	res, err := svc.Calculate(context.Background(), CalculateRequest{BusinessID: "b1", CalculationDate: "2025-05-01"}, admin)
	require.NoError(t, err)

	assert.Equal(t, "2025-05-01", res.Calculation.CalculationDate)
	assert.Equal(t, 2, res.Summary.EquipmentCount)
	assert.Equal(t, "40.00%", res.Summary.ProfitMargin)
	assert.Equal(t, "30.00%", res.Summary.NetMargin)
	require.NotNil(t, res.SavedRecord)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "u-1", store.saved[0].CalculatedBy)
}

func TestCalculateDoesNotSaveBelowAdmin(t *testing.T) {
	businesses := &stubBusinesses{records: []business.Record{installed("b1", "2025-03-02", business.Equipment{PHMeter: 1})}}
	store := &stubStore{}
	svc := newTestService(t, businesses, store, nil)

	res, err := svc.Calculate(context.Background(), CalculateRequest{BusinessID: "b1"},
		auth.Principal{UserID: "u-2", PermissionLevel: auth.LevelGeneral})
	require.NoError(t, err)
	assert.Nil(t, res.SavedRecord)
	assert.Empty(t, store.saved)
	assert.Equal(t, "2025-06-15", res.Calculation.CalculationDate)

	no := false
	res, err = svc.Calculate(context.Background(), CalculateRequest{BusinessID: "b1", SaveResult: &no},
		auth.Principal{UserID: "u-1", PermissionLevel: auth.LevelSuperAdmin})
	require.NoError(t, err)
	assert.Nil(t, res.SavedRecord)
	assert.Empty(t, store.saved)
}

func TestCalculateValidation(t *testing.T) {
	svc := newTestService(t, &stubBusinesses{}, &stubStore{}, nil)
	ctx := context.Background()
	p := auth.Principal{UserID: "u", PermissionLevel: auth.LevelAdmin}

	_, err := svc.Calculate(ctx, CalculateRequest{}, p)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Calculate(ctx, CalculateRequest{BusinessID: "b1", CalculationDate: "01/05/2025"}, p)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Calculate(ctx, CalculateRequest{BusinessID: "missing"}, p)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestListCalculationsPaginates(t *testing.T) {
	store := &stubStore{
		listed: []SavedCalculation{{TotalRevenue: 1000, NetProfit: 250}, {TotalRevenue: 1000, NetProfit: 50}},
		total:  5,
	}
	svc := newTestService(t, &stubBusinesses{}, store, nil)

	page, err := svc.ListCalculations(context.Background(), CalculationFilter{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, Pagination{TotalCount: 5, Offset: 2, Limit: 2, HasMore: true}, page.Pagination)
	assert.Equal(t, 2000.0, page.Summary.TotalRevenue)
	assert.Equal(t, 300.0, page.Summary.TotalProfit)
	assert.Equal(t, "15.00%", page.Summary.AverageProfitMargin)

	_, err = svc.ListCalculations(context.Background(), CalculationFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, store.filter.Limit)

	store.listed = nil
	page, err = svc.ListCalculations(context.Background(), CalculationFilter{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.Pagination.Limit)
	assert.NotNil(t, page.Calculations)
	assert.Equal(t, "0%", page.Summary.AverageProfitMargin)
}
