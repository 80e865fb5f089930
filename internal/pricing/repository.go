package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ecofacility/facility-erp/internal/platform/db"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Repository persists the pricing tables.
type Repository struct {
	pool db.Pool
	q    db.Querier
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// WithTx runs fn with a repository bound to a single transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(*Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{pool: r.pool, q: tx})
	})
}

type conditions struct {
	clauses []string
	args    []any
}

// add appends clause, replacing "?" with the next positional parameter.
func (c *conditions) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, strings.Replace(clause, "?", db.Placeholder(len(c.args)), 1))
}

func (c *conditions) raw(clause string) {
	c.clauses = append(c.clauses, clause)
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func baseConditions(f ListFilter) *conditions {
	c := &conditions{}
	if f.ID != "" {
		c.add("id::text = ?", f.ID)
	}
	if !f.IncludeInactive {
		c.raw("is_active = true")
	}
	if f.AsOf != nil {
		c.add("effective_from <= ?", *f.AsOf)
	}
	return c
}

const windowColumns = `effective_from, effective_to, is_active, created_by::text, created_at`

func windowTargets(a *Audit, w *Window) []any {
	return []any{&w.EffectiveFrom, &w.EffectiveTo, &w.IsActive, &a.CreatedBy, &a.CreatedAt}
}

// ListGovernment returns official prices.
func (r *Repository) ListGovernment(ctx context.Context, f ListFilter) ([]GovernmentPrice, error) {
	c := baseConditions(f)
	if f.EquipmentType != "" {
		c.add("equipment_type = ?", f.EquipmentType)
	}
	query := `SELECT id::text, equipment_type, COALESCE(equipment_name, ''), official_price::float8,
		COALESCE(manufacturer_price, 0)::float8, COALESCE(installation_cost, 0)::float8, announcement_number, ` +
		windowColumns + ` FROM government_pricing` + c.where() + ` ORDER BY equipment_type, effective_from DESC`
	rows, err := r.q.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("pricing: list government: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (GovernmentPrice, error) {
		var p GovernmentPrice
		targets := append([]any{&p.ID, &p.EquipmentType, &p.EquipmentName, &p.OfficialPrice,
			&p.ManufacturerPrice, &p.InstallationCost, &p.AnnouncementNumber}, windowTargets(&p.Audit, &p.Window)...)
		err := row.Scan(targets...)
		return p, err
	})
}

// ListManufacturer returns manufacturer costs.
func (r *Repository) ListManufacturer(ctx context.Context, f ListFilter) ([]ManufacturerPrice, error) {
	c := baseConditions(f)
	if f.EquipmentType != "" {
		c.add("equipment_type = ?", f.EquipmentType)
	}
	if f.Manufacturer != "" {
		c.add("manufacturer = ?", f.Manufacturer)
	}
	query := `SELECT id::text, equipment_type, COALESCE(equipment_name, ''), manufacturer, cost_price::float8, notes, ` +
		windowColumns + ` FROM manufacturer_pricing` + c.where() + ` ORDER BY manufacturer, equipment_name, effective_from DESC`
	rows, err := r.q.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("pricing: list manufacturer: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ManufacturerPrice, error) {
		var p ManufacturerPrice
		targets := append([]any{&p.ID, &p.EquipmentType, &p.EquipmentName, &p.Manufacturer, &p.CostPrice, &p.Notes},
			windowTargets(&p.Audit, &p.Window)...)
		err := row.Scan(targets...)
		return p, err
	})
}

// ListInstallation returns base installation costs.
func (r *Repository) ListInstallation(ctx context.Context, f ListFilter) ([]InstallationCost, error) {
	c := baseConditions(f)
	if f.EquipmentType != "" {
		c.add("equipment_type = ?", f.EquipmentType)
	}
	query := `SELECT id::text, equipment_type, COALESCE(equipment_name, ''), base_installation_cost::float8, notes, ` +
		windowColumns + ` FROM equipment_installation_cost` + c.where() + ` ORDER BY equipment_type, effective_from DESC`
	rows, err := r.q.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("pricing: list installation: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (InstallationCost, error) {
		var p InstallationCost
		targets := append([]any{&p.ID, &p.EquipmentType, &p.EquipmentName, &p.BaseInstallationCost, &p.Notes},
			windowTargets(&p.Audit, &p.Window)...)
		err := row.Scan(targets...)
		return p, err
	})
}

// ListSurvey returns survey fee settings.
func (r *Repository) ListSurvey(ctx context.Context, f ListFilter) ([]SurveyCost, error) {
	c := baseConditions(f)
	if f.SurveyType != "" {
		c.add("survey_type = ?", f.SurveyType)
	}
	query := `SELECT id::text, survey_type, COALESCE(survey_name, ''), base_cost::float8, ` +
		windowColumns + ` FROM survey_cost_settings` + c.where() + ` ORDER BY survey_type, effective_from DESC`
	rows, err := r.q.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("pricing: list survey: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SurveyCost, error) {
		var p SurveyCost
		targets := append([]any{&p.ID, &p.SurveyType, &p.SurveyName, &p.BaseCost},
			windowTargets(&p.Audit, &p.Window)...)
		err := row.Scan(targets...)
		return p, err
	})
}

// ListCommission returns sales office commission settings.
func (r *Repository) ListCommission(ctx context.Context, f ListFilter) ([]CommissionSetting, error) {
	c := baseConditions(f)
	if f.SalesOffice != "" {
		c.add("sales_office = ?", f.SalesOffice)
	}
	query := `SELECT id::text, sales_office, commission_type, commission_percentage::float8, commission_per_unit::float8, ` +
		windowColumns + ` FROM sales_office_cost_settings` + c.where() + ` ORDER BY sales_office, effective_from DESC`
	rows, err := r.q.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("pricing: list commission: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CommissionSetting, error) {
		var p CommissionSetting
		targets := append([]any{&p.ID, &p.SalesOffice, &p.CommissionType, &p.CommissionPercentage, &p.CommissionPerUnit},
			windowTargets(&p.Audit, &p.Window)...)
		err := row.Scan(targets...)
		return p, err
	})
}

// ListRates returns negotiated office and manufacturer rates effective on or before asOf.
func (r *Repository) ListRates(ctx context.Context, asOf time.Time) ([]CommissionRate, error) {
	rows, err := r.q.Query(ctx, `SELECT sales_office, manufacturer, commission_rate::float8, effective_from, effective_to
		FROM sales_office_commission_rates WHERE effective_from <= $1`, asOf)
	if err != nil {
		return nil, fmt.Errorf("pricing: list rates: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CommissionRate, error) {
		rate := CommissionRate{Window: Window{IsActive: true}}
		err := row.Scan(&rate.SalesOffice, &rate.Manufacturer, &rate.Rate, &rate.EffectiveFrom, &rate.EffectiveTo)
		return rate, err
	})
}

// ListHistory returns pricing change history, newest first.
func (r *Repository) ListHistory(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error) {
	c := &conditions{}
	if f.TableName != "" {
		c.add("table_name = ?", f.TableName)
	}
	if f.RecordID != "" {
		c.add("record_id::text = ?", f.RecordID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	c.args = append(c.args, limit)
	query := `SELECT id::text, table_name, record_id::text, change_type, COALESCE(old_values, 'null'::jsonb)::text,
		COALESCE(new_values, 'null'::jsonb)::text, COALESCE(changed_fields, '[]'::jsonb)::text,
		COALESCE(change_reason, ''), COALESCE(user_id::text, ''), COALESCE(user_name, ''), created_at
		FROM pricing_change_history` + c.where() + ` ORDER BY created_at DESC LIMIT ` + db.Placeholder(len(c.args))
	rows, err := r.q.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("pricing: list history: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (HistoryEntry, error) {
		var h HistoryEntry
		var oldValues, newValues, fields string
		err := row.Scan(&h.ID, &h.TableName, &h.RecordID, &h.ChangeType, &oldValues, &newValues, &fields,
			&h.ChangeReason, &h.UserID, &h.UserName, &h.CreatedAt)
		h.OldValues = json.RawMessage(oldValues)
		h.NewValues = json.RawMessage(newValues)
		h.ChangedFields = json.RawMessage(fields)
		return h, err
	})
}

type column struct {
	name  string
	value any
}

// change describes an effective-dated insert that supersedes the active row
// identified by keys.
type change struct {
	table         Table
	keys          []column
	values        []column
	from          time.Time
	to            *time.Time
	conflict      []string
	changeType    string
	changedFields []string
	reason        string
	subject       string
}

type changeResult struct {
	id         string
	superseded bool
}

// supersede inserts the new row, closes the previous active row at the new
// effective_from and records history and audit entries. It must run inside a
// transaction.
func (r *Repository) supersede(ctx context.Context, c change, actor Actor) (changeResult, error) {
	keys := &conditions{}
	for _, k := range c.keys {
		keys.add(k.name+" = ?", k.value)
	}
	keys.raw("is_active = true")

	var existingID, existingRow string
	err := r.q.QueryRow(ctx, `SELECT t.id::text, row_to_json(t)::text FROM `+string(c.table)+` t`+
		keys.where()+` ORDER BY t.effective_from DESC LIMIT 1 FOR UPDATE`, keys.args...).Scan(&existingID, &existingRow)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return changeResult{}, fmt.Errorf("pricing: lock active %s: %w", c.table, err)
	}

	names := make([]string, 0, len(c.values)+4)
	args := make([]any, 0, len(c.values)+4)
	for _, v := range c.values {
		names = append(names, v.name)
		args = append(args, v.value)
	}
	names = append(names, "effective_from", "effective_to", "created_by", "is_active")
	args = append(args, c.from, c.to, nullable(actor.UserID), true)
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = db.Placeholder(i + 1)
	}

	insert := `INSERT INTO ` + string(c.table) + ` AS t (` + strings.Join(names, ", ") + `) VALUES (` +
		strings.Join(placeholders, ", ") + `)`
	if len(c.conflict) > 0 {
		updates := make([]string, 0, len(c.values)+2)
		for _, v := range c.values {
			updates = append(updates, v.name+" = EXCLUDED."+v.name)
		}
		updates = append(updates, "effective_to = EXCLUDED.effective_to", "is_active = EXCLUDED.is_active")
		insert += ` ON CONFLICT (` + strings.Join(c.conflict, ", ") + `) DO UPDATE SET ` + strings.Join(updates, ", ")
	}
	insert += ` RETURNING t.id::text, row_to_json(t)::text`

	var newID, newRow string
	if err := r.q.QueryRow(ctx, insert, args...).Scan(&newID, &newRow); err != nil {
		return changeResult{}, fmt.Errorf("pricing: insert %s: %w", c.table, httpx.TranslatePg(err))
	}

	superseded := existingID != "" && existingID != newID
	if superseded {
		if _, err := r.q.Exec(ctx, `UPDATE `+string(c.table)+` SET is_active = false, effective_to = $1 WHERE id::text = $2`,
			c.from, existingID); err != nil {
			return changeResult{}, fmt.Errorf("pricing: deactivate %s: %w", c.table, err)
		}
		fields, _ := json.Marshal(c.changedFields)
		if _, err := r.q.Exec(ctx, `INSERT INTO pricing_change_history (
			table_name, record_id, change_type, old_values, new_values,
			changed_fields, change_reason, user_id, user_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			string(c.table), newID, c.changeType, json.RawMessage(existingRow), json.RawMessage(newRow), json.RawMessage(fields),
			c.reason, nullable(actor.UserID), actor.Name); err != nil {
			return changeResult{}, fmt.Errorf("pricing: record history: %w", err)
		}
	}

	verb := "생성"
	if existingID != "" {
		verb = "수정"
	}
	if err := r.audit(ctx, c.table, newID, "INSERT", nil, json.RawMessage(newRow),
		fmt.Sprintf("%s %s: %s", c.table.Label(), verb, c.subject), actor); err != nil {
		return changeResult{}, err
	}
	return changeResult{id: newID, superseded: existingID != ""}, nil
}

// deactivate closes a row at day and records an audit entry.
func (r *Repository) deactivate(ctx context.Context, table Table, id string, day time.Time, subject func(json.RawMessage) string, actor Actor) error {
	var text string
	err := r.q.QueryRow(ctx, `SELECT row_to_json(t)::text FROM `+string(table)+` t WHERE t.id::text = $1 FOR UPDATE`, id).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", table, id, httpx.ErrNotFound)
		}
		return fmt.Errorf("pricing: load %s: %w", table, err)
	}
	row := json.RawMessage(text)
	tag, err := r.q.Exec(ctx, `UPDATE `+string(table)+` SET is_active = false, effective_to = $1 WHERE id::text = $2`, day, id)
	if err != nil {
		return fmt.Errorf("pricing: deactivate %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", table, id, httpx.ErrNotFound)
	}
	return r.audit(ctx, table, id, "DELETE", row, nil, fmt.Sprintf("%s 삭제: %s", table.Label(), subject(row)), actor)
}

func (r *Repository) audit(ctx context.Context, table Table, id, action string, oldRow, newRow json.RawMessage, description string, actor Actor) error {
	_, err := r.q.Exec(ctx, `INSERT INTO revenue_audit_log (
		table_name, record_id, action_type, old_values, new_values, action_description,
		user_id, user_name, user_permission_level
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(table), id, action, nullableJSON(oldRow), nullableJSON(newRow), description,
		nullable(actor.UserID), actor.Name, actor.PermissionLevel)
	if err != nil {
		return fmt.Errorf("pricing: audit %s: %w", table, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
