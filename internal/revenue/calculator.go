package revenue

import (
	"time"

	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/pricing"
)

// Contribution is what one business adds to its dashboard bucket.
type Contribution struct {
	Revenue      float64
	Cost         float64
	Commission   float64
	Survey       float64
	Installation float64
	NetProfit    float64
	Units        int
}

// Contribute applies the dashboard pricing policy to one business. Equipment
// types without an official price are skipped; a missing manufacturer cost
// counts as zero.
func Contribute(rec business.Record, cat *pricing.Catalog, surveyAdjustments float64) Contribution {
	var c Contribution
	manufacturer := rec.ManufacturerCode()
	for _, t := range business.EquipmentTypes {
		qty := rec.Equipment.Quantity(t)
		if qty <= 0 {
			continue
		}
		official, ok := cat.OfficialPrice(t)
		if !ok {
			continue
		}
		cost, _ := cat.ManufacturerCost(manufacturer, t)
		c.Revenue += official * float64(qty)
		c.Cost += cost * float64(qty)
		c.Installation += cat.InstallationCost(t) * float64(qty)
		c.Units += qty
	}
	c.Revenue += rec.AdditionalCost - rec.Negotiation

	c.Commission = cat.OfficeCommission(rec.SalesOfficeOrDefault()).Amount(c.Revenue, c.Units)
	c.Survey = surveyFees(rec, cat).Total + surveyAdjustments
	c.NetProfit = c.Revenue - c.Cost - c.Commission - c.Survey - c.Installation - rec.InstallationExtraCost
	return c
}

// surveyFees charges the configured fee for every survey that has a date.
// Total excludes adjustments.
func surveyFees(rec business.Record, cat *pricing.Catalog) SurveyBreakdown {
	var s SurveyBreakdown
	if rec.EstimateSurveyDate != nil {
		s.Estimate = cat.SurveyFee(pricing.SurveyEstimate)
	}
	if rec.PreConstructionSurveyDate != nil {
		s.PreConstruction = cat.SurveyFee(pricing.SurveyPreConstruction)
	}
	if rec.CompletionSurveyDate != nil {
		s.Completion = cat.SurveyFee(pricing.SurveyCompletion)
	}
	s.Total = s.Estimate + s.PreConstruction + s.Completion
	return s
}

// AdditionalInstallation holds per business extra installation charges keyed
// by equipment type. AllEquipment applies to every type.
type AdditionalInstallation map[string]float64

// AllEquipment is the key of charges that apply to every equipment type.
const AllEquipment = "all"

// For returns the extra charge per unit of t.
func (a AdditionalInstallation) For(t business.EquipmentType) float64 {
	return a[AllEquipment] + a[string(t)]
}

// DetailInput gathers everything the detailed policy needs for one business.
type DetailInput struct {
	Business               business.Record
	Catalog                *pricing.Catalog
	AdditionalInstallation AdditionalInstallation
	SurveyAdjustments      float64
	Adjustment             *OperatingAdjustment
}

// Calculate applies the detailed pricing policy. Unlike the dashboard it
// falls back to default prices, honours negotiated commission rates and
// computes the commission on revenue net of the negotiation discount.
func Calculate(in DetailInput) Calculation {
	rec := in.Business
	cat := in.Catalog
	manufacturer := rec.ManufacturerCode()

	calc := Calculation{
		BusinessID:         rec.ID,
		BusinessName:       rec.Name,
		SalesOffice:        rec.SalesOfficeOrDefault(),
		CalculationDate:    cat.Date().Format(time.DateOnly),
		EquipmentBreakdown: []LineItem{},
	}

	var revenue, units float64
	for _, t := range business.EquipmentTypes {
		qty := rec.Equipment.Quantity(t)
		if qty <= 0 {
			continue
		}
		item := LineItem{
			EquipmentType:         t,
			EquipmentName:         cat.EquipmentName(t),
			Quantity:              qty,
			UnitOfficialPrice:     cat.OfficialPriceOrDefault(t),
			UnitManufacturerPrice: cat.ManufacturerCostOrDefault(manufacturer, t),
			UnitInstallationCost:  cat.InstallationCost(t) + in.AdditionalInstallation.For(t),
		}
		n := float64(qty)
		item.TotalRevenue = item.UnitOfficialPrice * n
		item.TotalCost = item.UnitManufacturerPrice * n
		item.TotalInstallation = item.UnitInstallationCost * n
		item.Profit = item.TotalRevenue - item.TotalCost - item.TotalInstallation

		revenue += item.TotalRevenue
		calc.TotalCost += item.TotalCost
		calc.InstallationCosts += item.TotalInstallation
		units += n
		calc.EquipmentBreakdown = append(calc.EquipmentBreakdown, item)
	}

	survey := surveyFees(rec, cat)
	survey.Adjustments = in.SurveyAdjustments
	survey.Total += in.SurveyAdjustments
	calc.SurveyCosts = survey.Total

	commissionBase := revenue - rec.Negotiation
	calc.BaseRevenue = revenue
	calc.TotalRevenue = revenue + rec.AdditionalCost - rec.Negotiation
	calc.InstallationExtraCost = rec.InstallationExtraCost

	scheme := cat.CommissionFor(calc.SalesOffice, manufacturer)
	calc.SalesCommission = scheme.Amount(commissionBase, int(units))
	commission := calc.SalesCommission
	if in.Adjustment != nil {
		adj := *in.Adjustment
		commission = adj.Apply(calc.SalesCommission)
		calc.AdjustedSalesCommission = &commission
		calc.OperatingAdjustment = &adj
	}

	calc.GrossProfit = calc.TotalRevenue - calc.TotalCost
	calc.NetProfit = calc.GrossProfit - calc.InstallationExtraCost - commission - calc.SurveyCosts - calc.InstallationCosts
	calc.CostBreakdown = CostBreakdown{
		SalesCommissionType:    scheme.Type,
		SalesCommissionRate:    scheme.Rate(),
		SalesCommissionAmount:  calc.SalesCommission,
		SurveyCosts:            survey,
		TotalInstallationCosts: calc.InstallationCosts,
	}
	return calc
}

// EffectiveCommission is the commission that was deducted from net profit.
func (c Calculation) EffectiveCommission() float64 {
	if c.AdjustedSalesCommission != nil {
		return *c.AdjustedSalesCommission
	}
	return c.SalesCommission
}
