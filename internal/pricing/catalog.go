package pricing

import (
	"time"

	"github.com/ecofacility/facility-erp/internal/business"
)

// Defaults are the fallback values applied when a table has no row for a key.
type Defaults struct {
	SalesOffice       string
	Manufacturer      string
	Commission        Commission
	SurveyFees        map[SurveyType]float64
	OfficialPrices    map[business.EquipmentType]float64
	ManufacturerCosts map[business.EquipmentType]float64
}

// StandardDefaults returns the defaults used in production.
func StandardDefaults() Defaults {
	return Defaults{
		SalesOffice:  business.DefaultSalesOffice,
		Manufacturer: business.DefaultManufacturer,
		Commission:   Commission{Type: CommissionPercentage, Percentage: 10},
		SurveyFees: map[SurveyType]float64{
			SurveyEstimate:        100000,
			SurveyPreConstruction: 150000,
			SurveyCompletion:      200000,
		},
		OfficialPrices: map[business.EquipmentType]float64{
			business.PHMeter:                    1000000,
			business.DifferentialPressureMeter:  400000,
			business.TemperatureMeter:           500000,
			business.DischargeCurrentMeter:      300000,
			business.FanCurrentMeter:            300000,
			business.PumpCurrentMeter:           300000,
			business.Gateway:                    1600000,
			business.VPNWired:                   400000,
			business.VPNWireless:                400000,
			business.ExplosionProofDiffPressure: 800000,
			business.ExplosionProofTemperature:  1500000,
			business.ExpansionDevice:            800000,
			business.Relay8Ch:                   300000,
			business.Relay16Ch:                  1600000,
			business.MainBoardReplacement:       350000,
			business.MultipleStack:              480000,
		},
		ManufacturerCosts: map[business.EquipmentType]float64{
			business.PHMeter:                    250000,
			business.DifferentialPressureMeter:  100000,
			business.TemperatureMeter:           125000,
			business.DischargeCurrentMeter:      80000,
			business.FanCurrentMeter:            80000,
			business.PumpCurrentMeter:           80000,
			business.Gateway:                    200000,
			business.VPNWired:                   100000,
			business.VPNWireless:                120000,
			business.ExplosionProofDiffPressure: 150000,
			business.ExplosionProofTemperature:  180000,
			business.ExpansionDevice:            120000,
			business.Relay8Ch:                   80000,
			business.Relay16Ch:                  150000,
			business.MainBoardReplacement:       100000,
			business.MultipleStack:              120000,
		},
	}
}

// Sources are the raw rows a Catalog is resolved from.
type Sources struct {
	Government   []GovernmentPrice
	Manufacturer []ManufacturerPrice
	Installation []InstallationCost
	Survey       []SurveyCost
	Commission   []CommissionSetting
	Rates        []CommissionRate
}

type officeManufacturer struct {
	office       string
	manufacturer string
}

type manufacturerEquipment struct {
	manufacturer string
	equipment    business.EquipmentType
}

// Catalog is the set of prices in force on one calculation date.
// It is read-only once built and safe to share between goroutines.
type Catalog struct {
	date         time.Time
	defaults     Defaults
	government   map[business.EquipmentType]GovernmentPrice
	manufacturer map[manufacturerEquipment]float64
	installation map[business.EquipmentType]float64
	survey       map[SurveyType]float64
	commission   map[string]Commission
	rates        map[officeManufacturer]float64
}

// NewCatalog selects, for every key, the row whose window covers date.
// When several rows qualify the one with the latest effective_from wins.
func NewCatalog(date time.Time, src Sources, defaults Defaults) *Catalog {
	c := &Catalog{
		date:         truncateDay(date),
		defaults:     defaults,
		government:   make(map[business.EquipmentType]GovernmentPrice),
		manufacturer: make(map[manufacturerEquipment]float64),
		installation: make(map[business.EquipmentType]float64),
		survey:       make(map[SurveyType]float64),
		commission:   make(map[string]Commission),
		rates:        make(map[officeManufacturer]float64),
	}

	for key, row := range selectEffective(src.Government, date, func(r GovernmentPrice) (business.EquipmentType, Window) {
		return r.EquipmentType, r.Window
	}) {
		c.government[key] = row
	}
	for key, row := range selectEffective(src.Manufacturer, date, func(r ManufacturerPrice) (manufacturerEquipment, Window) {
		return manufacturerEquipment{business.ManufacturerCode(r.Manufacturer), r.EquipmentType}, r.Window
	}) {
		c.manufacturer[key] = row.CostPrice
	}
	for key, row := range selectEffective(src.Installation, date, func(r InstallationCost) (business.EquipmentType, Window) {
		return r.EquipmentType, r.Window
	}) {
		c.installation[key] = row.BaseInstallationCost
	}
	for key, row := range selectEffective(src.Survey, date, func(r SurveyCost) (SurveyType, Window) {
		return r.SurveyType, r.Window
	}) {
		c.survey[key] = row.BaseCost
	}
	for key, row := range selectEffective(src.Commission, date, func(r CommissionSetting) (string, Window) {
		return r.SalesOffice, r.Window
	}) {
		c.commission[key] = row.Commission()
	}
	for key, row := range selectEffective(src.Rates, date, func(r CommissionRate) (officeManufacturer, Window) {
		return officeManufacturer{r.SalesOffice, business.ManufacturerCode(r.Manufacturer)}, r.Window
	}) {
		c.rates[key] = row.Rate
	}
	return c
}

func selectEffective[T any, K comparable](rows []T, date time.Time, key func(T) (K, Window)) map[K]T {
	out := make(map[K]T)
	from := make(map[K]time.Time)
	for _, row := range rows {
		k, w := key(row)
		if !w.Covers(date) {
			continue
		}
		if prev, ok := from[k]; ok && !w.EffectiveFrom.After(prev) {
			continue
		}
		out[k] = row
		from[k] = w.EffectiveFrom
	}
	return out
}

// Date returns the calculation date the catalog was resolved for.
func (c *Catalog) Date() time.Time { return c.date }

// Defaults returns the fallback values of the catalog.
func (c *Catalog) Defaults() Defaults { return c.defaults }

// OfficialPrice returns the configured official price of t.
func (c *Catalog) OfficialPrice(t business.EquipmentType) (float64, bool) {
	row, ok := c.government[t]
	return row.OfficialPrice, ok
}

// OfficialPriceOrDefault falls back to the default official price table.
func (c *Catalog) OfficialPriceOrDefault(t business.EquipmentType) float64 {
	if v, ok := c.OfficialPrice(t); ok {
		return v
	}
	return c.defaults.OfficialPrices[t]
}

// EquipmentName prefers the name recorded with the official price.
func (c *Catalog) EquipmentName(t business.EquipmentType) string {
	if row, ok := c.government[t]; ok && row.EquipmentName != "" {
		return row.EquipmentName
	}
	return t.Name()
}

// ManufacturerCost returns the configured cost of t for a manufacturer code.
func (c *Catalog) ManufacturerCost(manufacturer string, t business.EquipmentType) (float64, bool) {
	v, ok := c.manufacturer[manufacturerEquipment{business.ManufacturerCode(manufacturer), t}]
	return v, ok
}

// ManufacturerCostOrDefault falls back to the default cost table.
func (c *Catalog) ManufacturerCostOrDefault(manufacturer string, t business.EquipmentType) float64 {
	if v, ok := c.ManufacturerCost(manufacturer, t); ok {
		return v
	}
	return c.defaults.ManufacturerCosts[t]
}

// HasManufacturer reports whether any cost row exists for the manufacturer.
func (c *Catalog) HasManufacturer(manufacturer string) bool {
	code := business.ManufacturerCode(manufacturer)
	for k := range c.manufacturer {
		if k.manufacturer == code {
			return true
		}
	}
	return false
}

// InstallationCost returns the base installation cost of t, zero when unset.
func (c *Catalog) InstallationCost(t business.EquipmentType) float64 {
	return c.installation[t]
}

// SurveyFee returns the configured fee for a survey type or its default.
func (c *Catalog) SurveyFee(s SurveyType) float64 {
	if v, ok := c.survey[s]; ok {
		return v
	}
	return c.defaults.SurveyFees[s]
}

// OfficeCommission returns the sales office setting, or the default scheme.
func (c *Catalog) OfficeCommission(office string) Commission {
	if office == "" {
		office = c.defaults.SalesOffice
	}
	if v, ok := c.commission[office]; ok {
		return v
	}
	return c.defaults.Commission
}

// CommissionFor resolves the scheme for an office and manufacturer. A
// negotiated manufacturer rate wins over the office setting.
func (c *Catalog) CommissionFor(office, manufacturer string) Commission {
	if office == "" {
		office = c.defaults.SalesOffice
	}
	if rate, ok := c.rates[officeManufacturer{office, business.ManufacturerCode(manufacturer)}]; ok {
		return Commission{Type: CommissionPercentage, Percentage: rate}
	}
	return c.OfficeCommission(office)
}

// Snapshot is the serialisable view of the prices used by a calculation.
type Snapshot struct {
	Manufacturer      string                             `json:"manufacturer"`
	OfficialPrices    map[business.EquipmentType]float64 `json:"official_prices"`
	ManufacturerCosts map[business.EquipmentType]float64 `json:"manufacturer_costs"`
	InstallationCosts map[business.EquipmentType]float64 `json:"installation_costs"`
	CalculationDate   string                             `json:"calculation_date"`
}

// Snapshot captures the prices for a manufacturer.
func (c *Catalog) Snapshot(manufacturer string) Snapshot {
	code := business.ManufacturerCode(manufacturer)
	snap := Snapshot{
		Manufacturer:      code,
		OfficialPrices:    make(map[business.EquipmentType]float64, len(c.government)),
		ManufacturerCosts: make(map[business.EquipmentType]float64),
		InstallationCosts: make(map[business.EquipmentType]float64, len(c.installation)),
		CalculationDate:   c.date.Format(time.DateOnly),
	}
	for t, row := range c.government {
		snap.OfficialPrices[t] = row.OfficialPrice
	}
	for k, v := range c.manufacturer {
		if k.manufacturer == code {
			snap.ManufacturerCosts[k.equipment] = v
		}
	}
	for t, v := range c.installation {
		snap.InstallationCosts[t] = v
	}
	return snap
}
