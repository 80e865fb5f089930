package revenue

import (
	"cmp"
	"math"
	"slices"

	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/pricing"
)

// Fold pre-populates one zero bucket per period key and accumulates every
// business into the bucket of its installation date. Businesses outside the
// period are ignored.
func Fold(p Period, records []business.Record, cat *pricing.Catalog, surveyAdjustments map[string]float64) []Bucket {
	buckets := make([]Bucket, len(p.Keys))
	index := make(map[string]int, len(p.Keys))
	for i, key := range p.Keys {
		buckets[i] = Bucket{Month: key, Label: Label(key, p.Granularity)}
		index[key] = i
	}
	for _, rec := range records {
		if rec.InstallationDate == nil {
			continue
		}
		i, ok := index[KeyFor(*rec.InstallationDate, p.Granularity)]
		if !ok {
			continue
		}
		c := Contribute(rec, cat, surveyAdjustments[rec.ID])
		buckets[i].Revenue += c.Revenue
		buckets[i].Cost += c.Cost
		buckets[i].Profit += c.NetProfit
		buckets[i].Count++
	}
	return buckets
}

// DeriveRates fills profit rate and period-over-period change. Buckets must be
// in ascending key order.
func DeriveRates(buckets []Bucket) {
	for i := range buckets {
		b := &buckets[i]
		b.ProfitRate = 0
		if b.Revenue > 0 {
			b.ProfitRate = b.Profit / b.Revenue * 100
		}
		b.PrevMonthChange = 0
		if i == 0 {
			continue
		}
		if prev := buckets[i-1].Profit; prev != 0 {
			b.PrevMonthChange = (b.Profit - prev) / math.Abs(prev) * 100
		}
	}
}

// ApplyTargets attaches targets and achievement rates by bucket key.
func ApplyTargets(buckets []Bucket, targets map[string]float64) {
	for i := range buckets {
		target, ok := targets[buckets[i].Month]
		if !ok {
			continue
		}
		t := target
		buckets[i].Target = &t
		if target > 0 {
			rate := buckets[i].Profit / target * 100
			buckets[i].AchievementRate = &rate
		}
	}
}

// Summarize totals the buckets. The average profit rate only considers
// buckets with a positive rate.
func Summarize(buckets []Bucket) Summary {
	var s Summary
	var rateSum float64
	var rated int
	for _, b := range buckets {
		s.TotalRevenue += b.Revenue
		s.TotalProfit += b.Profit
		if b.ProfitRate > 0 {
			rateSum += b.ProfitRate
			rated++
		}
	}
	if len(buckets) > 0 {
		s.AvgProfit = math.Round(s.TotalProfit / float64(len(buckets)))
	}
	if rated > 0 {
		s.AvgProfitRate = round2(rateSum / float64(rated))
	}
	return s
}

// Order sorts buckets for output.
func Order(buckets []Bucket, ascending bool) {
	slices.SortFunc(buckets, func(a, b Bucket) int {
		if ascending {
			return cmp.Compare(a.Month, b.Month)
		}
		return cmp.Compare(b.Month, a.Month)
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Build runs the whole aggregation for a resolved period.
func Build(p Period, records []business.Record, cat *pricing.Catalog, surveyAdjustments, targets map[string]float64) Dashboard {
	buckets := Fold(p, records, cat, surveyAdjustments)
	Order(buckets, true)
	DeriveRates(buckets)
	ApplyTargets(buckets, targets)
	summary := Summarize(buckets)
	if !p.Ascending() {
		Order(buckets, false)
	}
	return Dashboard{Buckets: buckets, Summary: summary, Granularity: p.Granularity, Mode: p.Mode}
}
