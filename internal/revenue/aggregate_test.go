package revenue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofacility/facility-erp/internal/business"
)

func TestBuildYearWithoutBusinesses(t *testing.T) {
	p := ResolvePeriod(Query{Year: 2024}, date("2025-06-01"))
	d := Build(p, nil, phCatalog("2025-06-01"), nil, nil)

	require.Len(t, d.Buckets, 12)
	for i, b := range d.Buckets {
		assert.Equal(t, p.Keys[i], b.Month)
		assert.Zero(t, b.Revenue)
		assert.Zero(t, b.Cost)
		assert.Zero(t, b.Profit)
		assert.Zero(t, b.ProfitRate)
		assert.Zero(t, b.PrevMonthChange)
		assert.Zero(t, b.Count)
		assert.Nil(t, b.Target)
	}
	assert.Equal(t, Summary{}, d.Summary)
	assert.Equal(t, ModeYear, d.Mode)
}

func TestFoldAssignsBusinessesToInstallationBucket(t *testing.T) {
	p := ResolvePeriod(Query{Year: 2025}, date("2025-06-01"))
	records := []business.Record{
		installed("a", "2025-03-02", business.Equipment{PHMeter: 2}),
		installed("b", "2025-03-28", business.Equipment{PHMeter: 1}),
		installed("c", "2024-12-31", business.Equipment{PHMeter: 5}),
	}
	buckets := Fold(p, records, phCatalog("2025-06-01"), map[string]float64{"b": 10000})

	march := buckets[2]
	assert.Equal(t, "2025-03", march.Month)
	assert.Equal(t, 2, march.Count)
	assert.Equal(t, 300000.0, march.Revenue)
	assert.Equal(t, 180000.0, march.Cost)
	assert.Equal(t, 60000.0+(100000-60000-10000-10000), march.Profit)

	total := 0
	for _, b := range buckets {
		total += b.Count
	}
	assert.Equal(t, 2, total, "businesses outside the year are ignored")
}

func TestFoldMonthRangeKeepsLateInstalls(t *testing.T) {
	for _, start := range []string{"2024-03", "2024-02"} {
		t.Run(start, func(t *testing.T) {
			p := ResolvePeriod(Query{StartDate: start, EndDate: "2024-03"}, date("2025-06-01"))
			buckets := Fold(p, []business.Record{
				installed("a", "2024-03-20", business.Equipment{PHMeter: 1}),
				installed("b", "2024-03-31", business.Equipment{PHMeter: 1}),
			}, phCatalog("2025-06-01"), nil)

			count, revenue := 0, 0.0
			for _, b := range buckets {
				count += b.Count
				revenue += b.Revenue
			}
			assert.Equal(t, 2, count)
			assert.Equal(t, 200000.0, revenue)
		})
	}
}

func TestDeriveRates(t *testing.T) {
	buckets := []Bucket{
		{Month: "2025-01", Revenue: 0, Profit: 0},
		{Month: "2025-02", Revenue: 200, Profit: 50},
		{Month: "2025-03", Revenue: 100, Profit: -25},
		{Month: "2025-04", Revenue: 100, Profit: 25},
	}
	DeriveRates(buckets)

	assert.Equal(t, 0.0, buckets[0].ProfitRate, "zero revenue has zero rate")
	assert.Equal(t, 0.0, buckets[0].PrevMonthChange)
	assert.Equal(t, 25.0, buckets[1].ProfitRate)
	assert.Equal(t, 0.0, buckets[1].PrevMonthChange, "previous profit of zero")
	assert.Equal(t, -150.0, buckets[2].PrevMonthChange)
	assert.Equal(t, 200.0, buckets[3].PrevMonthChange, "change is relative to the absolute previous profit")
}

func TestApplyTargets(t *testing.T) {
	buckets := []Bucket{{Month: "2025-01", Profit: 50}, {Month: "2025-02", Profit: 50}, {Month: "2025-03", Profit: 50}}
	ApplyTargets(buckets, map[string]float64{"2025-01": 200, "2025-02": 0})

	require.NotNil(t, buckets[0].Target)
	require.NotNil(t, buckets[0].AchievementRate)
	assert.Equal(t, 25.0, *buckets[0].AchievementRate)
	require.NotNil(t, buckets[1].Target)
	assert.Nil(t, buckets[1].AchievementRate)
	assert.Nil(t, buckets[2].Target)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Bucket{
		{Revenue: 100, Profit: 10, ProfitRate: 10},
		{Revenue: 100, Profit: -5, ProfitRate: -5},
		{Revenue: 300, Profit: 100, ProfitRate: 33.34},
	})
	assert.Equal(t, 500.0, s.TotalRevenue)
	assert.Equal(t, 105.0, s.TotalProfit)
	assert.Equal(t, 35.0, s.AvgProfit)
	assert.Equal(t, 21.67, s.AvgProfitRate)
}

func TestBuildRecentModeIsNewestFirst(t *testing.T) {
	p := ResolvePeriod(Query{Months: 3}, date("2025-03-15"))
	records := []business.Record{
		installed("a", "2025-01-05", business.Equipment{PHMeter: 1}),
		installed("b", "2025-02-05", business.Equipment{PHMeter: 2}),
	}
	d := Build(p, records, phCatalog("2025-03-15"), nil, nil)

	require.Len(t, d.Buckets, 3)
	assert.Equal(t, []string{"2025-03", "2025-02", "2025-01"},
		[]string{d.Buckets[0].Month, d.Buckets[1].Month, d.Buckets[2].Month})
	// Change is still measured against the chronologically previous bucket.
	assert.Equal(t, 100.0, d.Buckets[1].PrevMonthChange)
	assert.Equal(t, -100.0, d.Buckets[0].PrevMonthChange)
}
