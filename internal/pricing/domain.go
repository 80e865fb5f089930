package pricing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ecofacility/facility-erp/internal/business"
)

// Table identifies one of the effective-dated pricing tables.
type Table string

// Pricing tables.
const (
	TableGovernment   Table = "government_pricing"
	TableManufacturer Table = "manufacturer_pricing"
	TableInstallation Table = "equipment_installation_cost"
	TableSurvey       Table = "survey_cost_settings"
	TableCommission   Table = "sales_office_cost_settings"
)

// Label returns the Korean name used in audit descriptions.
func (t Table) Label() string {
	switch t {
	case TableGovernment:
		return "환경부 고시가"
	case TableManufacturer:
		return "제조사별 원가"
	case TableInstallation:
		return "기본 설치비"
	case TableSurvey:
		return "실사비용"
	case TableCommission:
		return "영업점 비용 설정"
	}
	return string(t)
}

// SurveyType enumerates the survey visits billed to a business.
type SurveyType string

// Survey types.
const (
	SurveyEstimate        SurveyType = "estimate"
	SurveyPreConstruction SurveyType = "pre_construction"
	SurveyCompletion      SurveyType = "completion"
)

// SurveyTypes lists the survey types in billing order.
var SurveyTypes = []SurveyType{SurveyEstimate, SurveyPreConstruction, SurveyCompletion}

// Valid reports whether s is a known survey type.
func (s SurveyType) Valid() bool {
	switch s {
	case SurveyEstimate, SurveyPreConstruction, SurveyCompletion:
		return true
	}
	return false
}

// CommissionType selects how a sales office is compensated.
type CommissionType string

// Commission types.
const (
	CommissionPercentage CommissionType = "percentage"
	CommissionPerUnit    CommissionType = "per_unit"
)

var (
	// ErrInvalidSurveyType is returned for survey types outside SurveyTypes.
	ErrInvalidSurveyType = errors.New("pricing: invalid survey type")
	// ErrCommissionValue is returned when the amount for the chosen commission type is missing.
	ErrCommissionValue = errors.New("pricing: commission value required for type")
)

// Window is the validity interval [EffectiveFrom, EffectiveTo) of a row.
type Window struct {
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to"`
	IsActive      bool       `json:"is_active"`
}

// Covers reports whether the window is active and contains date.
func (w Window) Covers(date time.Time) bool {
	if !w.IsActive {
		return false
	}
	day := truncateDay(date)
	if truncateDay(w.EffectiveFrom).After(day) {
		return false
	}
	if w.EffectiveTo != nil && !truncateDay(*w.EffectiveTo).After(day) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Audit carries the row metadata shared by all pricing tables.
type Audit struct {
	ID        string    `json:"id"`
	CreatedBy *string   `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// GovernmentPrice is the official (customer facing) price of an equipment type.
type GovernmentPrice struct {
	Audit
	Window
	EquipmentType      business.EquipmentType `json:"equipment_type"`
	EquipmentName      string                 `json:"equipment_name"`
	OfficialPrice      float64                `json:"official_price"`
	ManufacturerPrice  float64                `json:"manufacturer_price"`
	InstallationCost   float64                `json:"installation_cost"`
	AnnouncementNumber *string                `json:"announcement_number"`
}

// ManufacturerPrice is the purchase cost charged by a manufacturer.
type ManufacturerPrice struct {
	Audit
	Window
	EquipmentType business.EquipmentType `json:"equipment_type"`
	EquipmentName string                 `json:"equipment_name"`
	Manufacturer  string                 `json:"manufacturer"`
	CostPrice     float64                `json:"cost_price"`
	Notes         *string                `json:"notes"`
}

// InstallationCost is the base installation charge per unit.
type InstallationCost struct {
	Audit
	Window
	EquipmentType        business.EquipmentType `json:"equipment_type"`
	EquipmentName        string                 `json:"equipment_name"`
	BaseInstallationCost float64                `json:"base_installation_cost"`
	Notes                *string                `json:"notes"`
}

// SurveyCost is the flat fee of one survey visit.
type SurveyCost struct {
	Audit
	Window
	SurveyType SurveyType `json:"survey_type"`
	SurveyName string     `json:"survey_name"`
	BaseCost   float64    `json:"base_cost"`
}

// CommissionSetting is the compensation scheme of a sales office.
type CommissionSetting struct {
	Audit
	Window
	SalesOffice          string         `json:"sales_office"`
	CommissionType       CommissionType `json:"commission_type"`
	CommissionPercentage *float64       `json:"commission_percentage"`
	CommissionPerUnit    *float64       `json:"commission_per_unit"`
}

// Commission returns the resolved scheme.
func (c CommissionSetting) Commission() Commission {
	out := Commission{Type: c.CommissionType}
	if c.CommissionPercentage != nil {
		out.Percentage = *c.CommissionPercentage
	}
	if c.CommissionPerUnit != nil {
		out.PerUnit = *c.CommissionPerUnit
	}
	return out
}

// CommissionRate is a percentage negotiated for a (sales office, manufacturer) pair.
type CommissionRate struct {
	Window
	SalesOffice  string  `json:"sales_office"`
	Manufacturer string  `json:"manufacturer"`
	Rate         float64 `json:"commission_rate"`
}

// Commission is a resolved compensation scheme.
type Commission struct {
	Type       CommissionType `json:"type"`
	Percentage float64        `json:"percentage"`
	PerUnit    float64        `json:"per_unit"`
}

// Amount returns the commission for the given revenue base and unit count.
func (c Commission) Amount(revenue float64, units int) float64 {
	if c.Type == CommissionPerUnit {
		return float64(units) * c.PerUnit
	}
	return revenue * c.Percentage / 100
}

// Rate returns the figure shown next to the commission: a percentage or a per-unit amount.
func (c Commission) Rate() float64 {
	if c.Type == CommissionPerUnit {
		return c.PerUnit
	}
	return c.Percentage
}

// HistoryEntry is a row of pricing_change_history.
type HistoryEntry struct {
	ID            string          `json:"id"`
	TableName     string          `json:"table_name"`
	RecordID      string          `json:"record_id"`
	ChangeType    string          `json:"change_type"`
	OldValues     json.RawMessage `json:"old_values"`
	NewValues     json.RawMessage `json:"new_values"`
	ChangedFields json.RawMessage `json:"changed_fields"`
	ChangeReason  string          `json:"change_reason"`
	UserID        string          `json:"user_id"`
	UserName      string          `json:"user_name"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ListFilter narrows pricing list queries.
type ListFilter struct {
	ID              string
	IncludeInactive bool
	AsOf            *time.Time
	EquipmentType   string
	Manufacturer    string
	SurveyType      string
	SalesOffice     string
}

// HistoryFilter narrows the change history listing.
type HistoryFilter struct {
	TableName string
	RecordID  string
	Limit     int
}

// Actor identifies who performed a pricing mutation.
type Actor struct {
	UserID          string
	Name            string
	PermissionLevel int
}
