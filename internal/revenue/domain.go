package revenue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/pricing"
)

// Query carries the dashboard filters.
type Query struct {
	Months         int
	StartDate      string
	EndDate        string
	Year           int
	Office         string
	Manufacturer   string
	SalesOffice    string
	ProgressStatus string
}

// Validate rejects a months window outside 0..MaxRecentMonths. Zero selects
// DefaultRecentMonths.
func (q Query) Validate() error {
	if q.Months < 0 || q.Months > MaxRecentMonths {
		return fmt.Errorf("%w: months must be between 1 and %d", httpx.ErrValidation, MaxRecentMonths)
	}
	return nil
}

// CacheKey identifies the query in the dashboard cache.
func (q Query) CacheKey() []string {
	return []string{
		"dashboard", "revenue",
		strconv.Itoa(q.Months), q.StartDate, q.EndDate, strconv.Itoa(q.Year),
		q.Office, q.Manufacturer, q.SalesOffice, q.ProgressStatus,
	}
}

// Bucket is the aggregate of one reporting period.
type Bucket struct {
	Month           string   `json:"month"`
	Label           string   `json:"label"`
	Revenue         float64  `json:"revenue"`
	Cost            float64  `json:"cost"`
	Profit          float64  `json:"profit"`
	ProfitRate      float64  `json:"profitRate"`
	PrevMonthChange float64  `json:"prevMonthChange"`
	Target          *float64 `json:"target,omitempty"`
	AchievementRate *float64 `json:"achievementRate,omitempty"`
	Count           int      `json:"count"`
}

// Summary totals the buckets of a dashboard response.
type Summary struct {
	AvgProfit     float64 `json:"avgProfit"`
	AvgProfitRate float64 `json:"avgProfitRate"`
	TotalRevenue  float64 `json:"totalRevenue"`
	TotalProfit   float64 `json:"totalProfit"`
}

// Dashboard is the revenue dashboard aggregate.
type Dashboard struct {
	Buckets     []Bucket    `json:"data"`
	Summary     Summary     `json:"summary"`
	Granularity Granularity `json:"granularity"`
	Mode        Mode        `json:"mode"`
}

// LineItem is the per equipment type breakdown of a detailed calculation.
type LineItem struct {
	EquipmentType         business.EquipmentType `json:"equipment_type"`
	EquipmentName         string                 `json:"equipment_name"`
	Quantity              int                    `json:"quantity"`
	UnitOfficialPrice     float64                `json:"unit_official_price"`
	UnitManufacturerPrice float64                `json:"unit_manufacturer_price"`
	UnitInstallationCost  float64                `json:"unit_installation_cost"`
	TotalRevenue          float64                `json:"total_revenue"`
	TotalCost             float64                `json:"total_cost"`
	TotalInstallation     float64                `json:"total_installation"`
	Profit                float64                `json:"profit"`
}

// SurveyBreakdown lists survey fees by type.
type SurveyBreakdown struct {
	Estimate        float64 `json:"estimate"`
	PreConstruction float64 `json:"pre_construction"`
	Completion      float64 `json:"completion"`
	Adjustments     float64 `json:"adjustments"`
	Total           float64 `json:"total"`
}

// CostBreakdown explains the deductions of a detailed calculation.
type CostBreakdown struct {
	SalesCommissionType    pricing.CommissionType `json:"sales_commission_type"`
	SalesCommissionRate    float64                `json:"sales_commission_rate"`
	SalesCommissionAmount  float64                `json:"sales_commission_amount"`
	SurveyCosts            SurveyBreakdown        `json:"survey_costs"`
	TotalInstallationCosts float64                `json:"total_installation_costs"`
}

// AdjustmentType is the direction of an operating cost adjustment.
type AdjustmentType string

// Adjustment directions.
const (
	AdjustmentAdd      AdjustmentType = "add"
	AdjustmentSubtract AdjustmentType = "subtract"
)

// OperatingAdjustment modifies the sales commission of a business.
type OperatingAdjustment struct {
	ID             string         `json:"id"`
	BusinessID     string         `json:"business_id"`
	AdjustmentType AdjustmentType `json:"adjustment_type"`
	Amount         float64        `json:"adjustment_amount"`
	Reason         string         `json:"adjustment_reason"`
}

// Apply returns the commission after the adjustment.
func (a OperatingAdjustment) Apply(commission float64) float64 {
	if a.AdjustmentType == AdjustmentAdd {
		return commission + a.Amount
	}
	return commission - a.Amount
}

// Calculation is the detailed revenue result of one business.
type Calculation struct {
	BusinessID              string               `json:"business_id"`
	BusinessName            string               `json:"business_name"`
	SalesOffice             string               `json:"sales_office"`
	CalculationDate         string               `json:"calculation_date"`
	BaseRevenue             float64              `json:"base_revenue"`
	TotalRevenue            float64              `json:"total_revenue"`
	TotalCost               float64              `json:"total_cost"`
	InstallationExtraCost   float64              `json:"installation_extra_cost"`
	GrossProfit             float64              `json:"gross_profit"`
	SalesCommission         float64              `json:"sales_commission"`
	AdjustedSalesCommission *float64             `json:"adjusted_sales_commission"`
	SurveyCosts             float64              `json:"survey_costs"`
	InstallationCosts       float64              `json:"installation_costs"`
	NetProfit               float64              `json:"net_profit"`
	EquipmentBreakdown      []LineItem           `json:"equipment_breakdown"`
	CostBreakdown           CostBreakdown        `json:"cost_breakdown"`
	OperatingAdjustment     *OperatingAdjustment `json:"operating_cost_adjustment"`
}

// EquipmentCount sums the quantities of the breakdown.
func (c Calculation) EquipmentCount() int {
	n := 0
	for _, item := range c.EquipmentBreakdown {
		n += item.Quantity
	}
	return n
}

// SavedCalculation is a row of revenue_calculations.
type SavedCalculation struct {
	ID                      string          `json:"id"`
	BusinessID              string          `json:"business_id"`
	BusinessName            string          `json:"business_name"`
	SalesOffice             string          `json:"sales_office"`
	CalculationDate         time.Time       `json:"calculation_date"`
	TotalRevenue            float64         `json:"total_revenue"`
	TotalCost               float64         `json:"total_cost"`
	GrossProfit             float64         `json:"gross_profit"`
	SalesCommission         float64         `json:"sales_commission"`
	AdjustedSalesCommission *float64        `json:"adjusted_sales_commission"`
	SurveyCosts             float64         `json:"survey_costs"`
	InstallationCosts       float64         `json:"installation_costs"`
	NetProfit               float64         `json:"net_profit"`
	EquipmentBreakdown      json.RawMessage `json:"equipment_breakdown"`
	CostBreakdown           json.RawMessage `json:"cost_breakdown"`
	CalculatedBy            *string         `json:"calculated_by"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// CalculationFilter narrows the saved calculation listing.
type CalculationFilter struct {
	BusinessID  string
	SalesOffice string
	StartDate   *time.Time
	EndDate     *time.Time
	Limit       int
	Offset      int
}

// CalculationPage is one page of saved calculations.
type CalculationPage struct {
	Calculations []SavedCalculation `json:"calculations"`
	Pagination   Pagination         `json:"pagination"`
	Summary      PageSummary        `json:"summary"`
}

// Pagination describes the position of a page.
type Pagination struct {
	TotalCount int  `json:"total_count"`
	Offset     int  `json:"offset"`
	Limit      int  `json:"limit"`
	HasMore    bool `json:"has_more"`
}

// PageSummary totals the rows of a page.
type PageSummary struct {
	TotalRevenue        float64 `json:"total_revenue"`
	TotalProfit         float64 `json:"total_profit"`
	AverageProfitMargin string  `json:"average_profit_margin"`
}
