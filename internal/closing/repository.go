package closing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ecofacility/facility-erp/internal/platform/db"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

const closingColumns = `id::text, year, month,
	COALESCE(total_revenue, 0)::float8, COALESCE(total_cost, 0)::float8,
	COALESCE(sales_commission_costs, 0)::float8, COALESCE(survey_costs, 0)::float8,
	COALESCE(installation_costs, 0)::float8, COALESCE(miscellaneous_costs, 0)::float8,
	COALESCE(net_profit, 0)::float8, COALESCE(business_count, 0),
	COALESCE(is_closed, false), closed_at, closed_by::text, created_at, updated_at`

// commissionExpr prefers the adjusted commission when one was recorded.
const commissionExpr = `COALESCE(NULLIF(rc.adjusted_sales_commission, 0), rc.sales_commission, 0)`

const totalsColumns = `COUNT(*),
	COALESCE(SUM(rc.total_revenue), 0)::float8,
	COALESCE(SUM(rc.total_cost), 0)::float8,
	COALESCE(SUM(` + commissionExpr + `), 0)::float8,
	COALESCE(SUM(rc.survey_costs), 0)::float8,
	COALESCE(SUM(rc.installation_costs), 0)::float8,
	COALESCE(SUM(rc.net_profit), 0)::float8`

// Repository persists monthly closings and miscellaneous costs.
type Repository struct {
	pool db.Pool
	q    db.Querier
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// WithTx runs fn with a repository bound to a single transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(Store) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{pool: r.pool, q: tx})
	})
}

func scanClosing(row pgx.Row) (Closing, error) {
	var c Closing
	err := row.Scan(&c.ID, &c.Year, &c.Month, &c.TotalRevenue, &c.TotalCost,
		&c.SalesCommissionCosts, &c.SurveyCosts, &c.InstallationCosts, &c.MiscellaneousCosts,
		&c.NetProfit, &c.BusinessCount, &c.IsClosed, &c.ClosedAt, &c.ClosedBy, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanTotals(row pgx.Row) (Totals, error) {
	var t Totals
	err := row.Scan(&t.Count, &t.Revenue, &t.Cost, &t.Commission, &t.Survey, &t.Installation, &t.NetProfit)
	return t, err
}

// List returns one page of closings ordered newest first plus the filtered count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Closing, int, error) {
	var clauses []string
	var args []any
	if f.Year > 0 {
		args = append(args, f.Year)
		clauses = append(clauses, "year = "+db.Placeholder(len(args)))
	}
	if f.Month > 0 {
		args = append(args, f.Month)
		clauses = append(clauses, "month = "+db.Placeholder(len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, "SELECT COUNT(*) FROM monthly_closings"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("closing: count: %w", err)
	}

	pageArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	sql := fmt.Sprintf("SELECT %s FROM monthly_closings%s ORDER BY year DESC, month DESC LIMIT %s OFFSET %s",
		closingColumns, where, db.Placeholder(len(args)+1), db.Placeholder(len(args)+2))
	rows, err := r.q.Query(ctx, sql, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("closing: list: %w", err)
	}
	defer rows.Close()

	out := make([]Closing, 0, f.Limit)
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("closing: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Get loads a closing by id.
func (r *Repository) Get(ctx context.Context, id string) (Closing, error) {
	c, err := scanClosing(r.q.QueryRow(ctx,
		"SELECT "+closingColumns+" FROM monthly_closings WHERE id::text = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Closing{}, fmt.Errorf("closing %s: %w", id, httpx.ErrNotFound)
	}
	if err != nil {
		return Closing{}, fmt.Errorf("closing: get: %w", err)
	}
	return c, nil
}

// MonthTotals sums saved calculations dated within p for installed businesses.
func (r *Repository) MonthTotals(ctx context.Context, p Period) (Totals, error) {
	t, err := scanTotals(r.q.QueryRow(ctx, `SELECT `+totalsColumns+`
		FROM revenue_calculations rc
		JOIN business_info b ON b.id = rc.business_id
		WHERE rc.calculation_date >= $1 AND rc.calculation_date < $2
		  AND b.installation_date IS NOT NULL`, p.Start(), p.End()))
	if err != nil {
		return Totals{}, fmt.Errorf("closing: totals %s: %w", p, err)
	}
	return t, nil
}

// TotalsByMonth returns MonthTotals for every month in [from.Start, to.End).
func (r *Repository) TotalsByMonth(ctx context.Context, from, to Period) (map[Period]Totals, error) {
	rows, err := r.q.Query(ctx, `SELECT EXTRACT(YEAR FROM rc.calculation_date)::int,
			EXTRACT(MONTH FROM rc.calculation_date)::int, `+totalsColumns+`
		FROM revenue_calculations rc
		JOIN business_info b ON b.id = rc.business_id
		WHERE rc.calculation_date >= $1 AND rc.calculation_date < $2
		  AND b.installation_date IS NOT NULL
		GROUP BY 1, 2`, from.Start(), to.End())
	if err != nil {
		return nil, fmt.Errorf("closing: totals by month: %w", err)
	}
	defer rows.Close()

	out := make(map[Period]Totals)
	for rows.Next() {
		var p Period
		var t Totals
		if err := rows.Scan(&p.Year, &p.Month, &t.Count, &t.Revenue, &t.Cost,
			&t.Commission, &t.Survey, &t.Installation, &t.NetProfit); err != nil {
			return nil, fmt.Errorf("closing: scan totals: %w", err)
		}
		out[p] = t
	}
	return out, rows.Err()
}

// Unclassified sums calculations of businesses without installation and completion dates.
func (r *Repository) Unclassified(ctx context.Context) (Totals, error) {
	t, err := scanTotals(r.q.QueryRow(ctx, `SELECT `+totalsColumns+`
		FROM revenue_calculations rc
		JOIN business_info b ON b.id = rc.business_id
		WHERE b.installation_date IS NULL AND b.completion_date IS NULL`))
	if err != nil {
		return Totals{}, fmt.Errorf("closing: unclassified: %w", err)
	}
	return t, nil
}

// Summary totals every stored closing row.
func (r *Repository) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := r.q.QueryRow(ctx, `SELECT
			COALESCE(SUM(total_revenue), 0)::float8,
			COALESCE(SUM(total_cost), 0)::float8,
			COALESCE(SUM(sales_commission_costs), 0)::float8,
			COALESCE(SUM(survey_costs), 0)::float8,
			COALESCE(SUM(installation_costs), 0)::float8,
			COALESCE(SUM(miscellaneous_costs), 0)::float8,
			COALESCE(SUM(net_profit), 0)::float8
		FROM monthly_closings`).Scan(&s.TotalRevenue, &s.TotalCost, &s.TotalSalesCommission,
		&s.TotalSurveyCosts, &s.TotalInstallationCosts, &s.TotalMiscCosts, &s.TotalProfit)
	if err != nil {
		return Summary{}, fmt.Errorf("closing: summary: %w", err)
	}
	return s, nil
}

// MiscTotal sums the miscellaneous costs recorded against the closing of p.
func (r *Repository) MiscTotal(ctx context.Context, p Period) (float64, error) {
	var total float64
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(mc.amount), 0)::float8
		FROM miscellaneous_costs mc
		JOIN monthly_closings c ON c.id = mc.monthly_closing_id
		WHERE c.year = $1 AND c.month = $2`, p.Year, p.Month).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("closing: misc total: %w", err)
	}
	return total, nil
}

// Upsert writes the closing of p, keyed on (year, month).
func (r *Repository) Upsert(ctx context.Context, p Period, t Totals, misc float64) (Closing, error) {
	c, err := scanClosing(r.q.QueryRow(ctx, `INSERT INTO monthly_closings
			(year, month, total_revenue, total_cost, sales_commission_costs, survey_costs,
			 installation_costs, miscellaneous_costs, net_profit, business_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (year, month) DO UPDATE SET
			total_revenue = EXCLUDED.total_revenue,
			total_cost = EXCLUDED.total_cost,
			sales_commission_costs = EXCLUDED.sales_commission_costs,
			survey_costs = EXCLUDED.survey_costs,
			installation_costs = EXCLUDED.installation_costs,
			miscellaneous_costs = EXCLUDED.miscellaneous_costs,
			net_profit = EXCLUDED.net_profit,
			business_count = EXCLUDED.business_count,
			updated_at = NOW()
		RETURNING `+closingColumns,
		p.Year, p.Month, t.Revenue, t.Cost, t.Commission, t.Survey, t.Installation, misc, t.Net(misc), t.Count))
	if err != nil {
		return Closing{}, fmt.Errorf("closing: upsert %s: %w", p, err)
	}
	return c, nil
}

const miscColumns = `id::text, monthly_closing_id::text, item_name, COALESCE(amount, 0)::float8,
	COALESCE(description, ''), created_by::text, created_at, updated_at`

func scanMisc(row pgx.Row) (MiscCost, error) {
	var m MiscCost
	err := row.Scan(&m.ID, &m.MonthlyClosingID, &m.ItemName, &m.Amount, &m.Description,
		&m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// MiscCosts lists the costs of a closing, newest first.
func (r *Repository) MiscCosts(ctx context.Context, closingID string) ([]MiscCost, error) {
	rows, err := r.q.Query(ctx, `SELECT `+miscColumns+` FROM miscellaneous_costs
		WHERE monthly_closing_id::text = $1 ORDER BY created_at DESC`, closingID)
	if err != nil {
		return nil, fmt.Errorf("closing: misc costs: %w", err)
	}
	defer rows.Close()
	out := []MiscCost{}
	for rows.Next() {
		m, err := scanMisc(rows)
		if err != nil {
			return nil, fmt.Errorf("closing: scan misc cost: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMiscCost records a cost against a closing.
func (r *Repository) InsertMiscCost(ctx context.Context, closingID string, in MiscCostInput, actorID string) (MiscCost, error) {
	var createdBy any
	if actorID != "" {
		createdBy = actorID
	}
	m, err := scanMisc(r.q.QueryRow(ctx, `INSERT INTO miscellaneous_costs
			(monthly_closing_id, item_name, amount, description, created_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING `+miscColumns, closingID, in.ItemName, *in.Amount, in.Description, createdBy))
	if err != nil {
		return MiscCost{}, fmt.Errorf("closing: insert misc cost: %w", httpx.TranslatePg(err))
	}
	return m, nil
}

// RefreshMisc recomputes the misc total and net profit of a stored closing.
func (r *Repository) RefreshMisc(ctx context.Context, closingID string) (Closing, error) {
	c, err := scanClosing(r.q.QueryRow(ctx, `WITH m AS (
			SELECT COALESCE(SUM(amount), 0) AS total FROM miscellaneous_costs
			WHERE monthly_closing_id::text = $1)
		UPDATE monthly_closings SET
			miscellaneous_costs = (SELECT total FROM m),
			net_profit = COALESCE(total_revenue, 0) - COALESCE(total_cost, 0)
				- COALESCE(sales_commission_costs, 0) - COALESCE(survey_costs, 0)
				- COALESCE(installation_costs, 0) - (SELECT total FROM m),
			updated_at = NOW()
		WHERE id::text = $1
		RETURNING `+closingColumns, closingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Closing{}, fmt.Errorf("closing %s: %w", closingID, httpx.ErrNotFound)
	}
	if err != nil {
		return Closing{}, fmt.Errorf("closing: refresh misc: %w", err)
	}
	return c, nil
}

// InstalledIn lists businesses whose installation date falls within p.
func (r *Repository) InstalledIn(ctx context.Context, p Period) ([]InstalledBusiness, error) {
	rows, err := r.q.Query(ctx, `SELECT id::text, COALESCE(business_name, ''), installation_date
		FROM business_info
		WHERE installation_date >= $1 AND installation_date < $2 AND NOT COALESCE(is_deleted, false)
		ORDER BY installation_date, id`, p.Start(), p.End())
	if err != nil {
		return nil, fmt.Errorf("closing: installed businesses: %w", err)
	}
	defer rows.Close()
	var out []InstalledBusiness
	for rows.Next() {
		var b InstalledBusiness
		if err := rows.Scan(&b.ID, &b.Name, &b.InstallationDate); err != nil {
			return nil, fmt.Errorf("closing: scan business: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// HasCalculation reports whether any calculation was saved for the business.
func (r *Repository) HasCalculation(ctx context.Context, businessID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM revenue_calculations WHERE business_id::text = $1)`,
		businessID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("closing: calculation exists: %w", err)
	}
	return exists, nil
}
