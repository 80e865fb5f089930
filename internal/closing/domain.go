package closing

import (
	"fmt"
	"time"

	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// ErrInvalidPeriod is returned for a missing year or a month outside 1-12.
var ErrInvalidPeriod = fmt.Errorf("%w: 유효한 연도와 월을 입력해주세요.", httpx.ErrValidation)

// Period identifies a closing month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Validate rejects periods that cannot name a calendar month.
func (p Period) Validate() error {
	if p.Year <= 0 || p.Month < 1 || p.Month > 12 {
		return ErrInvalidPeriod
	}
	return nil
}

// Start is the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is the first day of the following month, exclusive.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Previous returns the month before p.
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Totals sums saved revenue calculations.
type Totals struct {
	Count        int
	Revenue      float64
	Cost         float64
	Commission   float64
	Survey       float64
	Installation float64
	NetProfit    float64
}

// Net is the closing profit once miscellaneous costs are deducted.
func (t Totals) Net(misc float64) float64 {
	return t.Revenue - t.Cost - t.Commission - t.Survey - t.Installation - misc
}

// Closing is a monthly_closings row.
type Closing struct {
	ID                   string     `json:"id"`
	Year                 int        `json:"year"`
	Month                int        `json:"month"`
	TotalRevenue         float64    `json:"totalRevenue"`
	TotalCost            float64    `json:"totalCost"`
	SalesCommissionCosts float64    `json:"salesCommissionCosts"`
	SurveyCosts          float64    `json:"surveyCosts"`
	InstallationCosts    float64    `json:"installationCosts"`
	MiscellaneousCosts   float64    `json:"miscellaneousCosts"`
	NetProfit            float64    `json:"netProfit"`
	BusinessCount        int        `json:"businessCount"`
	IsClosed             bool       `json:"isClosed"`
	ClosedAt             *time.Time `json:"closedAt"`
	ClosedBy             *string    `json:"closedBy"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Period returns the closing month.
func (c Closing) Period() Period {
	return Period{Year: c.Year, Month: c.Month}
}

// Apply replaces the stored aggregates with live totals, keeping misc costs.
func (c *Closing) Apply(t Totals) {
	c.BusinessCount = t.Count
	c.TotalRevenue = t.Revenue
	c.TotalCost = t.Cost
	c.SalesCommissionCosts = t.Commission
	c.SurveyCosts = t.Survey
	c.InstallationCosts = t.Installation
	c.NetProfit = t.Net(c.MiscellaneousCosts)
}

// Summary totals every stored closing.
type Summary struct {
	TotalRevenue           float64 `json:"totalRevenue"`
	TotalCost              float64 `json:"totalCost"`
	TotalSalesCommission   float64 `json:"totalSalesCommission"`
	TotalSurveyCosts       float64 `json:"totalSurveyCosts"`
	TotalInstallationCosts float64 `json:"totalInstallationCosts"`
	TotalMiscCosts         float64 `json:"totalMiscCosts"`
	TotalProfit            float64 `json:"totalProfit"`
}

// Unclassified totals calculations of businesses with neither an
// installation nor a completion date.
type Unclassified struct {
	Count                int     `json:"count"`
	TotalRevenue         float64 `json:"totalRevenue"`
	TotalCost            float64 `json:"totalCost"`
	SalesCommissionCosts float64 `json:"salesCommissionCosts"`
	SurveyCosts          float64 `json:"surveyCosts"`
	InstallationCosts    float64 `json:"installationCosts"`
	NetProfit            float64 `json:"netProfit"`
}

// UnclassifiedFrom converts raw totals.
func UnclassifiedFrom(t Totals) Unclassified {
	return Unclassified{
		Count:                t.Count,
		TotalRevenue:         t.Revenue,
		TotalCost:            t.Cost,
		SalesCommissionCosts: t.Commission,
		SurveyCosts:          t.Survey,
		InstallationCosts:    t.Installation,
		NetProfit:            t.NetProfit,
	}
}

// ListFilter narrows the closing list.
type ListFilter struct {
	Year  int
	Month int
	Page  int
	Limit int
}

// Pagination describes a closing page.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Page is the GET response payload.
type Page struct {
	Closings     []Closing    `json:"closings"`
	Unclassified Unclassified `json:"unclassified"`
	Pagination   Pagination   `json:"pagination"`
	Summary      Summary      `json:"summary"`
}

// Breakdown echoes the figures a computed closing was built from.
type Breakdown struct {
	TotalRevenue      float64 `json:"totalRevenue"`
	TotalCost         float64 `json:"totalCost"`
	SalesCommission   float64 `json:"salesCommission"`
	SurveyCosts       float64 `json:"surveyCosts"`
	InstallationCosts float64 `json:"installationCosts"`
	MiscCosts         float64 `json:"miscCosts"`
	NetProfit         float64 `json:"netProfit"`
}

// Result is returned by Compute.
type Result struct {
	Closing          Closing   `json:"closing"`
	BusinessCount    int       `json:"businessCount"`
	RevenueBreakdown Breakdown `json:"revenueBreakdown"`
}

// MiscCost is a manually entered cost attached to a closing.
type MiscCost struct {
	ID               string    `json:"id"`
	MonthlyClosingID string    `json:"monthlyClosingId"`
	ItemName         string    `json:"itemName"`
	Amount           float64   `json:"amount"`
	Description      string    `json:"description"`
	CreatedBy        *string   `json:"createdBy"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// MiscCostInput is the body of a misc cost create.
type MiscCostInput struct {
	ItemName    string   `json:"itemName" validate:"required"`
	Amount      *float64 `json:"amount" validate:"required,gte=0"`
	Description string   `json:"description"`
}

// ErrInvalidMiscCost is returned when the item name or amount is missing.
var ErrInvalidMiscCost = fmt.Errorf("%w: 항목명과 유효한 금액을 입력해주세요.", httpx.ErrValidation)

// InstalledBusiness is a business whose installation falls in a closing month.
type InstalledBusiness struct {
	ID               string
	Name             string
	InstallationDate time.Time
}

// OutcomeStatus reports what happened to one business during auto calculation.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is the per-business auto calculation result.
type Outcome struct {
	BusinessID   string        `json:"business_id"`
	BusinessName string        `json:"business_name"`
	Status       OutcomeStatus `json:"status"`
	Message      string        `json:"message"`
	Revenue      float64       `json:"revenue,omitempty"`
}

// AutoResult summarises an auto calculation run.
type AutoResult struct {
	TotalBusinesses      int       `json:"totalBusinesses"`
	CalculatedBusinesses int       `json:"calculatedBusinesses"`
	FailedBusinesses     int       `json:"failedBusinesses"`
	Businesses           []Outcome `json:"businesses"`
	Closing              *Result   `json:"closing,omitempty"`
	AggregationWarning   string    `json:"aggregationWarning,omitempty"`
}
