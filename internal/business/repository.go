package business

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ecofacility/facility-erp/internal/platform/db"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// MaxInstalledRows caps a single installed-business scan.
const MaxInstalledRows = 10000

// Repository reads facility records.
type Repository interface {
	ListInstalled(ctx context.Context, filter Filter) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
}

type repository struct {
	db db.Querier
}

// NewRepository constructs the PostgreSQL backed repository.
func NewRepository(q db.Querier) Repository {
	return &repository{db: q}
}

const recordColumns = `id::text, COALESCE(business_name, ''), COALESCE(address, ''),
	COALESCE(manufacturer, ''), COALESCE(sales_office, ''), COALESCE(progress_status, ''),
	installation_date, completion_survey_date, estimate_survey_date, pre_construction_survey_date,
	COALESCE(additional_cost, 0)::float8, negotiation, COALESCE(installation_extra_cost, 0)::float8,
	COALESCE(ph_meter, 0), COALESCE(differential_pressure_meter, 0), COALESCE(temperature_meter, 0),
	COALESCE(discharge_current_meter, 0), COALESCE(fan_current_meter, 0), COALESCE(pump_current_meter, 0),
	COALESCE(gateway, 0), COALESCE(vpn_wired, 0), COALESCE(vpn_wireless, 0),
	COALESCE(explosion_proof_differential_pressure_meter_domestic, 0),
	COALESCE(explosion_proof_temperature_meter_domestic, 0), COALESCE(expansion_device, 0),
	COALESCE(relay_8ch, 0), COALESCE(relay_16ch, 0), COALESCE(main_board_replacement, 0),
	COALESCE(multiple_stack, 0)`

// ListInstalled returns active, non-deleted businesses with an installation date.
// The region filter runs in Go because it depends on address parsing.
func (r *repository) ListInstalled(ctx context.Context, filter Filter) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM business_info
		WHERE is_active = true AND is_deleted = false AND installation_date IS NOT NULL`
	args := []interface{}{}
	argCount := 0

	if filter.InstalledFrom != nil && filter.InstalledTo != nil {
		argCount++
		query += ` AND installation_date >= $` + strconv.Itoa(argCount)
		args = append(args, *filter.InstalledFrom)
		argCount++
		query += ` AND installation_date <= $` + strconv.Itoa(argCount)
		args = append(args, *filter.InstalledTo)
	}
	if filter.Manufacturer != "" {
		argCount++
		query += ` AND manufacturer = $` + strconv.Itoa(argCount)
		args = append(args, filter.Manufacturer)
	}
	if filter.SalesOffice != "" {
		argCount++
		query += ` AND sales_office = $` + strconv.Itoa(argCount)
		args = append(args, filter.SalesOffice)
	}
	if filter.ProgressStatus != "" {
		argCount++
		query += ` AND progress_status = $` + strconv.Itoa(argCount)
		args = append(args, filter.ProgressStatus)
	}

	limit := filter.Limit
	if limit <= 0 || limit > MaxInstalledRows {
		limit = MaxInstalledRows
	}
	argCount++
	query += ` ORDER BY installation_date, id LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("business: list installed: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("business: scan: %w", err)
		}
		if filter.Region != "" && rec.Region() != filter.Region {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get loads a single non-deleted business.
func (r *repository) Get(ctx context.Context, id string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM business_info WHERE id::text = $1 AND is_deleted = false`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("business %s: %w", id, httpx.ErrNotFound)
		}
		return Record{}, fmt.Errorf("business: get: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var negotiation *string
	targets := []any{
		&rec.ID, &rec.Name, &rec.Address, &rec.Manufacturer, &rec.SalesOffice, &rec.ProgressStatus,
		&rec.InstallationDate, &rec.CompletionSurveyDate, &rec.EstimateSurveyDate, &rec.PreConstructionSurveyDate,
		&rec.AdditionalCost, &negotiation, &rec.InstallationExtraCost,
	}
	targets = append(targets, rec.Equipment.scanTargets()...)
	if err := row.Scan(targets...); err != nil {
		return Record{}, err
	}
	rec.Negotiation = ParseAmount(negotiation)
	return rec, nil
}

// ParseAmount reads a free-text amount column. Thousands separators and the
// "원" suffix are ignored; anything unparsable counts as zero.
func ParseAmount(raw *string) float64 {
	if raw == nil {
		return 0
	}
	cleaned := strings.TrimSpace(*raw)
	cleaned = strings.TrimSuffix(cleaned, "원")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return 0
	}
	return v
}
