package closing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/revenue"
)

type stubStore struct {
	closings     []Closing
	total        int
	listFilter   ListFilter
	live         map[Period]Totals
	liveRange    [2]Period
	month        Totals
	misc         float64
	summary      Summary
	unclassified Totals
	upserted     []Period
	installed    []InstalledBusiness
	calculated   map[string]bool
	miscCosts    []MiscCost
	refreshed    string
	txCalls      int
	err          error
}

func (s *stubStore) WithTx(_ context.Context, fn func(Store) error) error {
	s.txCalls++
	return fn(s)
}

func (s *stubStore) List(_ context.Context, f ListFilter) ([]Closing, int, error) {
	s.listFilter = f
	return s.closings, s.total, s.err
}

func (s *stubStore) Get(_ context.Context, id string) (Closing, error) {
	for _, c := range s.closings {
		if c.ID == id {
			return c, nil
		}
	}
	return Closing{}, fmt.Errorf("closing %s: %w", id, httpx.ErrNotFound)
}

func (s *stubStore) MonthTotals(context.Context, Period) (Totals, error) { return s.month, s.err }

func (s *stubStore) TotalsByMonth(_ context.Context, from, to Period) (map[Period]Totals, error) {
	s.liveRange = [2]Period{from, to}
	return s.live, nil
}

func (s *stubStore) Unclassified(context.Context) (Totals, error) { return s.unclassified, nil }

func (s *stubStore) Summary(context.Context) (Summary, error) { return s.summary, nil }

func (s *stubStore) MiscTotal(context.Context, Period) (float64, error) { return s.misc, nil }

func (s *stubStore) Upsert(_ context.Context, p Period, t Totals, misc float64) (Closing, error) {
	s.upserted = append(s.upserted, p)
	c := Closing{ID: "c-" + p.String(), Year: p.Year, Month: p.Month, MiscellaneousCosts: misc}
	c.Apply(t)
	return c, nil
}

func (s *stubStore) MiscCosts(context.Context, string) ([]MiscCost, error) { return s.miscCosts, nil }

func (s *stubStore) InsertMiscCost(_ context.Context, closingID string, in MiscCostInput, actorID string) (MiscCost, error) {
	return MiscCost{ID: "m-1", MonthlyClosingID: closingID, ItemName: in.ItemName, Amount: *in.Amount, CreatedBy: &actorID}, nil
}

func (s *stubStore) RefreshMisc(_ context.Context, closingID string) (Closing, error) {
	s.refreshed = closingID
	return Closing{ID: closingID, MiscellaneousCosts: 5000}, nil
}

func (s *stubStore) InstalledIn(context.Context, Period) ([]InstalledBusiness, error) {
	return s.installed, nil
}

func (s *stubStore) HasCalculation(_ context.Context, id string) (bool, error) {
	return s.calculated[id], nil
}

type stubCalculator struct {
	revenue  map[string]float64
	fail     map[string]bool
	requests []revenue.CalculateRequest
}

func (c *stubCalculator) Calculate(_ context.Context, req revenue.CalculateRequest, _ auth.Principal) (revenue.CalculateResult, error) {
	c.requests = append(c.requests, req)
	if c.fail[req.BusinessID] {
		return revenue.CalculateResult{}, errors.New("pricing lookup failed")
	}
	return revenue.CalculateResult{Calculation: revenue.Calculation{BusinessID: req.BusinessID, TotalRevenue: c.revenue[req.BusinessID]}}, nil
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return nil
}

var admin = auth.Principal{UserID: "admin-1", PermissionLevel: auth.LevelAdmin}

func TestPeriodBoundaries(t *testing.T) {
	p := Period{Year: 2024, Month: 12}
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, Period{Year: 2024, Month: 11}, p.Previous())
	assert.Equal(t, Period{Year: 2023, Month: 12}, Period{Year: 2024, Month: 1}.Previous())
	assert.Equal(t, "2024-12", p.String())

	for _, bad := range []Period{{Year: 2025, Month: 0}, {Year: 2025, Month: 13}, {Month: 3}} {
		assert.ErrorIs(t, bad.Validate(), ErrInvalidPeriod)
		assert.ErrorIs(t, bad.Validate(), httpx.ErrValidation)
	}
}

func TestComputeUpsertsAndBumpsCache(t *testing.T) {
	store := &stubStore{
		month: Totals{Count: 3, Revenue: 1000000, Cost: 400000, Commission: 100000, Survey: 50000, Installation: 30000},
		misc:  20000,
	}
	cache := &countingInvalidator{}
	svc := NewService(store, nil, cache, nil)

	res, err := svc.Compute(context.Background(), Period{Year: 2025, Month: 3})
	require.NoError(t, err)

	assert.Equal(t, 1, store.txCalls)
	assert.Equal(t, []Period{{Year: 2025, Month: 3}}, store.upserted)
	assert.Equal(t, 3, res.BusinessCount)
	assert.Equal(t, 400000.0, res.RevenueBreakdown.NetProfit)
	assert.Equal(t, 400000.0, res.Closing.NetProfit)
	assert.Equal(t, 20000.0, res.RevenueBreakdown.MiscCosts)
	assert.Equal(t, 50000.0, res.RevenueBreakdown.SurveyCosts)
	assert.Equal(t, 1, cache.bumps)
}

func TestComputeRejectsInvalidMonth(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil, nil, nil)
	_, err := svc.Compute(context.Background(), Period{Year: 2025, Month: 13})
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	assert.Empty(t, store.upserted)
}

func TestRecomputeRecentCoversPreviousAndCurrentMonth(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, nil, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2025, 1, 2, 2, 0, 0, 0, time.UTC) })

	res, err := svc.RecomputeRecent(context.Background())
	require.NoError(t, err)
	assert.Len(t, res, 2)
	assert.Equal(t, []Period{{Year: 2024, Month: 12}, {Year: 2025, Month: 1}}, store.upserted)
}

func TestListAppliesLiveTotals(t *testing.T) {
	store := &stubStore{
		closings: []Closing{
			{ID: "a", Year: 2025, Month: 3, TotalRevenue: 1, MiscellaneousCosts: 1000},
			{ID: "b", Year: 2025, Month: 1, TotalRevenue: 1},
		},
		total: 14,
		live: map[Period]Totals{
			{Year: 2025, Month: 3}: {Count: 2, Revenue: 10000, Cost: 4000, Commission: 1000},
		},
		unclassified: Totals{Count: 1, Revenue: 500, NetProfit: 100},
		summary:      Summary{TotalRevenue: 99},
	}
	svc := NewService(store, nil, nil, nil)

	page, err := svc.List(context.Background(), ListFilter{Year: 2025})
	require.NoError(t, err)

	assert.Equal(t, ListFilter{Year: 2025, Page: 1, Limit: DefaultPageSize}, store.listFilter)
	assert.Equal(t, [2]Period{{Year: 2025, Month: 1}, {Year: 2025, Month: 3}}, store.liveRange)
	assert.Equal(t, Pagination{Total: 14, Page: 1, Limit: 12, TotalPages: 2}, page.Pagination)

	march := page.Closings[0]
	assert.Equal(t, 2, march.BusinessCount)
	assert.Equal(t, 10000.0, march.TotalRevenue)
	assert.Equal(t, 4000.0, march.NetProfit, "misc costs stay deducted")

	jan := page.Closings[1]
	assert.Equal(t, 0, jan.BusinessCount)
	assert.Equal(t, 0.0, jan.TotalRevenue)

	assert.Equal(t, Unclassified{Count: 1, TotalRevenue: 500, NetProfit: 100}, page.Unclassified)
	assert.Equal(t, 99.0, page.Summary.TotalRevenue)
}

func TestListEmpty(t *testing.T) {
	svc := NewService(&stubStore{}, nil, nil, nil)
	page, err := svc.List(context.Background(), ListFilter{Limit: 1000})
	require.NoError(t, err)
	assert.NotNil(t, page.Closings)
	assert.Equal(t, maxPageSize, page.Pagination.Limit)
	assert.Equal(t, 0, page.Pagination.TotalPages)
}

func TestAutoCalculate(t *testing.T) {
	installedOn := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	store := &stubStore{
		installed: []InstalledBusiness{
			{ID: "done", Name: "완료", InstallationDate: installedOn},
			{ID: "ok", Name: "정상", InstallationDate: installedOn},
			{ID: "zero", Name: "원가없음", InstallationDate: installedOn},
			{ID: "broken", Name: "오류", InstallationDate: installedOn},
		},
		calculated: map[string]bool{"done": true},
	}
	calc := &stubCalculator{revenue: map[string]float64{"ok": 300000}, fail: map[string]bool{"broken": true}}
	svc := NewService(store, calc, nil, nil)

	res, err := svc.AutoCalculate(context.Background(), Period{Year: 2025, Month: 3}, false, admin)
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalBusinesses)
	assert.Equal(t, 1, res.CalculatedBusinesses)
	assert.Equal(t, 2, res.FailedBusinesses)
	require.Len(t, res.Businesses, 4)
	assert.Equal(t, OutcomeSkipped, res.Businesses[0].Status)
	assert.Equal(t, OutcomeSuccess, res.Businesses[1].Status)
	assert.Equal(t, 300000.0, res.Businesses[1].Revenue)
	assert.Equal(t, OutcomeFailed, res.Businesses[2].Status)
	assert.Equal(t, OutcomeFailed, res.Businesses[3].Status)
	require.NotNil(t, res.Closing)

	require.Len(t, calc.requests, 3)
	assert.Equal(t, "2025-03-14", calc.requests[0].CalculationDate)
	require.NotNil(t, calc.requests[0].SaveResult)
	assert.True(t, *calc.requests[0].SaveResult)

	calc.requests = nil
	_, err = svc.AutoCalculate(context.Background(), Period{Year: 2025, Month: 3}, true, admin)
	require.NoError(t, err)
	assert.Len(t, calc.requests, 4, "force recalculates existing businesses")
}

func TestAutoCalculateWithoutBusinesses(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, &stubCalculator{}, nil, nil)
	res, err := svc.AutoCalculate(context.Background(), Period{Year: 2025, Month: 3}, false, admin)
	require.NoError(t, err)
	assert.Zero(t, res.TotalBusinesses)
	assert.NotNil(t, res.Businesses)
	assert.Nil(t, res.Closing)
	assert.Empty(t, store.upserted)
}

func TestAutoCalculateRequiresAdmin(t *testing.T) {
	svc := NewService(&stubStore{}, &stubCalculator{}, nil, nil)
	_, err := svc.AutoCalculate(context.Background(), Period{Year: 2025, Month: 3}, false,
		auth.Principal{UserID: "u", PermissionLevel: auth.LevelManager})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestAddMiscCost(t *testing.T) {
	store := &stubStore{closings: []Closing{{ID: "c-1", Year: 2025, Month: 3}}}
	cache := &countingInvalidator{}
	svc := NewService(store, nil, cache, nil)

	amount := 5000.0
	cost, updated, err := svc.AddMiscCost(context.Background(), "c-1", MiscCostInput{ItemName: "운송비", Amount: &amount}, admin)
	require.NoError(t, err)
	assert.Equal(t, "운송비", cost.ItemName)
	assert.Equal(t, "admin-1", *cost.CreatedBy)
	assert.Equal(t, "c-1", store.refreshed)
	assert.Equal(t, 5000.0, updated.MiscellaneousCosts)
	assert.Equal(t, 1, cache.bumps)

	_, _, err = svc.AddMiscCost(context.Background(), "missing", MiscCostInput{ItemName: "x", Amount: &amount}, admin)
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	negative := -1.0
	_, _, err = svc.AddMiscCost(context.Background(), "c-1", MiscCostInput{ItemName: "x", Amount: &negative}, admin)
	assert.ErrorIs(t, err, ErrInvalidMiscCost)
	_, _, err = svc.AddMiscCost(context.Background(), "c-1", MiscCostInput{Amount: &amount}, admin)
	assert.ErrorIs(t, err, ErrInvalidMiscCost)
	_, _, err = svc.AddMiscCost(context.Background(), "c-1", MiscCostInput{ItemName: "x"}, admin)
	assert.ErrorIs(t, err, ErrInvalidMiscCost)
}

func TestMiscCostsTotal(t *testing.T) {
	store := &stubStore{miscCosts: []MiscCost{{Amount: 1000}, {Amount: 2500}}}
	svc := NewService(store, nil, nil, nil)
	costs, total, err := svc.MiscCosts(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Len(t, costs, 2)
	assert.Equal(t, 3500.0, total)
}
