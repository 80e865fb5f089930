package revenue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ecofacility/facility-erp/internal/platform/db"
)

// adjustmentBatch bounds the ANY($1) array sent per survey adjustment query.
const adjustmentBatch = 500

// Repository reads and writes revenue specific tables.
type Repository struct {
	db db.Querier
}

// NewRepository constructs the PostgreSQL backed repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// SurveyAdjustments sums survey_cost_adjustments per business up to asOf.
func (r *Repository) SurveyAdjustments(ctx context.Context, businessIDs []string, asOf time.Time) (map[string]float64, error) {
	out := make(map[string]float64, len(businessIDs))
	for _, chunk := range db.Chunk(businessIDs, adjustmentBatch) {
		rows, err := r.db.Query(ctx, `SELECT business_id::text, COALESCE(SUM(adjustment_amount), 0)::float8
			FROM survey_cost_adjustments
			WHERE business_id::text = ANY($1) AND applied_date <= $2
			GROUP BY business_id`, chunk, asOf)
		if err != nil {
			return nil, fmt.Errorf("revenue: survey adjustments: %w", err)
		}
		for rows.Next() {
			var id string
			var amount float64
			if err := rows.Scan(&id, &amount); err != nil {
				rows.Close()
				return nil, fmt.Errorf("revenue: scan survey adjustment: %w", err)
			}
			out[id] += amount
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RevenueTargets returns revenue targets keyed by bucket key.
func (r *Repository) RevenueTargets(ctx context.Context, keys []string) (map[string]float64, error) {
	out := make(map[string]float64)
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT month, COALESCE(target_value, 0)::float8
		FROM dashboard_targets WHERE target_type = 'revenue' AND month = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("revenue: targets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("revenue: scan target: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// AdditionalInstallation loads the active extra installation charges of a
// business applied on or before asOf.
func (r *Repository) AdditionalInstallation(ctx context.Context, businessID string, asOf time.Time) (AdditionalInstallation, error) {
	rows, err := r.db.Query(ctx, `SELECT COALESCE(equipment_type, 'all'), COALESCE(additional_cost, 0)::float8
		FROM business_additional_installation_cost
		WHERE business_id::text = $1 AND is_active = true AND applied_date <= $2`, businessID, asOf)
	if err != nil {
		return nil, fmt.Errorf("revenue: additional installation: %w", err)
	}
	defer rows.Close()
	out := AdditionalInstallation{}
	for rows.Next() {
		var key string
		var amount float64
		if err := rows.Scan(&key, &amount); err != nil {
			return nil, fmt.Errorf("revenue: scan additional installation: %w", err)
		}
		out[key] += amount
	}
	return out, rows.Err()
}

// OperatingAdjustment loads the commission adjustment of a business, nil when none.
func (r *Repository) OperatingAdjustment(ctx context.Context, businessID string) (*OperatingAdjustment, error) {
	var adj OperatingAdjustment
	err := r.db.QueryRow(ctx, `SELECT id::text, business_id::text, adjustment_type,
			COALESCE(adjustment_amount, 0)::float8, COALESCE(adjustment_reason, '')
		FROM operating_cost_adjustments WHERE business_id::text = $1
		ORDER BY created_at DESC LIMIT 1`, businessID).
		Scan(&adj.ID, &adj.BusinessID, &adj.AdjustmentType, &adj.Amount, &adj.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("revenue: operating adjustment: %w", err)
	}
	return &adj, nil
}

// SaveInput is the row written to revenue_calculations.
type SaveInput struct {
	Calculation  Calculation
	Snapshot     any
	CalculatedBy string
}

const savedColumns = `id::text, business_id::text, COALESCE(business_name, ''), COALESCE(sales_office, ''),
	calculation_date, total_revenue::float8, total_cost::float8, gross_profit::float8,
	sales_commission::float8, adjusted_sales_commission::float8, survey_costs::float8,
	installation_costs::float8, net_profit::float8, COALESCE(equipment_breakdown::text, '[]'),
	COALESCE(cost_breakdown::text, '{}'), calculated_by::text, created_at, updated_at`

// SaveCalculation upserts the calculation on (business_id, calculation_date).
func (r *Repository) SaveCalculation(ctx context.Context, in SaveInput) (SavedCalculation, error) {
	c := in.Calculation
	equipment, err := json.Marshal(c.EquipmentBreakdown)
	if err != nil {
		return SavedCalculation{}, err
	}
	costs, err := json.Marshal(c.CostBreakdown)
	if err != nil {
		return SavedCalculation{}, err
	}
	snapshot, err := json.Marshal(in.Snapshot)
	if err != nil {
		return SavedCalculation{}, err
	}
	var calculatedBy *string
	if in.CalculatedBy != "" {
		calculatedBy = &in.CalculatedBy
	}
	row := r.db.QueryRow(ctx, `INSERT INTO revenue_calculations
			(business_id, business_name, sales_office, calculation_date, total_revenue, total_cost,
			 gross_profit, sales_commission, adjusted_sales_commission, survey_costs, installation_costs,
			 net_profit, equipment_breakdown, cost_breakdown, pricing_version_snapshot, calculated_by, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14::jsonb, $15::jsonb, $16::uuid, NOW())
		ON CONFLICT (business_id, calculation_date) DO UPDATE SET
			business_name = EXCLUDED.business_name,
			sales_office = EXCLUDED.sales_office,
			total_revenue = EXCLUDED.total_revenue,
			total_cost = EXCLUDED.total_cost,
			gross_profit = EXCLUDED.gross_profit,
			sales_commission = EXCLUDED.sales_commission,
			adjusted_sales_commission = EXCLUDED.adjusted_sales_commission,
			survey_costs = EXCLUDED.survey_costs,
			installation_costs = EXCLUDED.installation_costs,
			net_profit = EXCLUDED.net_profit,
			equipment_breakdown = EXCLUDED.equipment_breakdown,
			cost_breakdown = EXCLUDED.cost_breakdown,
			pricing_version_snapshot = EXCLUDED.pricing_version_snapshot,
			calculated_by = EXCLUDED.calculated_by,
			updated_at = NOW()
		RETURNING `+savedColumns,
		c.BusinessID, c.BusinessName, c.SalesOffice, c.CalculationDate, c.TotalRevenue, c.TotalCost,
		c.GrossProfit, c.SalesCommission, c.AdjustedSalesCommission, c.SurveyCosts, c.InstallationCosts,
		c.NetProfit, string(equipment), string(costs), string(snapshot), calculatedBy)
	saved, err := scanSaved(row)
	if err != nil {
		return SavedCalculation{}, fmt.Errorf("revenue: save calculation: %w", err)
	}
	return saved, nil
}

// ListCalculations returns one page of saved calculations, newest first, and
// the total number of matching rows.
func (r *Repository) ListCalculations(ctx context.Context, f CalculationFilter) ([]SavedCalculation, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0
	if f.BusinessID != "" {
		argCount++
		where += ` AND business_id::text = $` + strconv.Itoa(argCount)
		args = append(args, f.BusinessID)
	}
	if f.SalesOffice != "" {
		argCount++
		where += ` AND sales_office = $` + strconv.Itoa(argCount)
		args = append(args, f.SalesOffice)
	}
	if f.StartDate != nil {
		argCount++
		where += ` AND calculation_date >= $` + strconv.Itoa(argCount)
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		argCount++
		where += ` AND calculation_date <= $` + strconv.Itoa(argCount)
		args = append(args, *f.EndDate)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM revenue_calculations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("revenue: count calculations: %w", err)
	}

	query := `SELECT ` + savedColumns + ` FROM revenue_calculations` + where +
		` ORDER BY calculation_date DESC, created_at DESC` +
		` LIMIT $` + strconv.Itoa(argCount+1) + ` OFFSET $` + strconv.Itoa(argCount+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("revenue: list calculations: %w", err)
	}
	defer rows.Close()
	var out []SavedCalculation
	for rows.Next() {
		saved, err := scanSaved(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("revenue: scan calculation: %w", err)
		}
		out = append(out, saved)
	}
	return out, total, rows.Err()
}

func scanSaved(row pgx.Row) (SavedCalculation, error) {
	var s SavedCalculation
	var equipment, costs string
	err := row.Scan(&s.ID, &s.BusinessID, &s.BusinessName, &s.SalesOffice, &s.CalculationDate,
		&s.TotalRevenue, &s.TotalCost, &s.GrossProfit, &s.SalesCommission, &s.AdjustedSalesCommission,
		&s.SurveyCosts, &s.InstallationCosts, &s.NetProfit, &equipment, &costs, &s.CalculatedBy,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return SavedCalculation{}, err
	}
	s.EquipmentBreakdown = json.RawMessage(equipment)
	s.CostBreakdown = json.RawMessage(costs)
	return s, nil
}
