package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Invalidator drops cached aggregates that depend on pricing.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service coordinates pricing reads, catalog resolution and superseding writes.
type Service struct {
	repo     *Repository
	cache    Invalidator
	logger   *slog.Logger
	defaults Defaults
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo *Repository, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		logger:   logger,
		defaults: StandardDefaults(),
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Resolve loads every pricing source concurrently and builds the catalog for date.
func (s *Service) Resolve(ctx context.Context, date time.Time) (*Catalog, error) {
	var src Sources
	asOf := truncateDay(date)
	filter := ListFilter{AsOf: &asOf}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		src.Government, err = s.repo.ListGovernment(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		src.Manufacturer, err = s.repo.ListManufacturer(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		src.Installation, err = s.repo.ListInstallation(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		src.Survey, err = s.repo.ListSurvey(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		src.Commission, err = s.repo.ListCommission(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		src.Rates, err = s.repo.ListRates(gctx, asOf)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewCatalog(date, src, s.defaults), nil
}

// ListGovernment returns official prices.
func (s *Service) ListGovernment(ctx context.Context, f ListFilter) ([]GovernmentPrice, error) {
	return s.repo.ListGovernment(ctx, f)
}

// ListManufacturer returns manufacturer costs.
func (s *Service) ListManufacturer(ctx context.Context, f ListFilter) ([]ManufacturerPrice, error) {
	return s.repo.ListManufacturer(ctx, f)
}

// ListInstallation returns installation costs.
func (s *Service) ListInstallation(ctx context.Context, f ListFilter) ([]InstallationCost, error) {
	return s.repo.ListInstallation(ctx, f)
}

// ListSurvey returns survey fees, keeping only the latest row per type unless
// inactive rows were requested.
func (s *Service) ListSurvey(ctx context.Context, f ListFilter) ([]SurveyCost, error) {
	rows, err := s.repo.ListSurvey(ctx, f)
	if err != nil || f.IncludeInactive {
		return rows, err
	}
	latest := make(map[SurveyType]int)
	out := make([]SurveyCost, 0, len(rows))
	for _, row := range rows {
		if i, ok := latest[row.SurveyType]; ok {
			if row.EffectiveFrom.After(out[i].EffectiveFrom) {
				out[i] = row
			}
			continue
		}
		latest[row.SurveyType] = len(out)
		out = append(out, row)
	}
	return out, nil
}

// ListCommission returns sales office settings.
func (s *Service) ListCommission(ctx context.Context, f ListFilter) ([]CommissionSetting, error) {
	return s.repo.ListCommission(ctx, f)
}

// History returns the pricing change log.
func (s *Service) History(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error) {
	return s.repo.ListHistory(ctx, f)
}

// GovernmentInput creates an official price.
type GovernmentInput struct {
	EquipmentType      business.EquipmentType `json:"equipment_type" validate:"required"`
	EquipmentName      string                 `json:"equipment_name" validate:"required"`
	OfficialPrice      float64                `json:"official_price" validate:"gt=0"`
	ManufacturerPrice  float64                `json:"manufacturer_price" validate:"gte=0"`
	InstallationCost   float64                `json:"installation_cost" validate:"gte=0"`
	AnnouncementNumber *string                `json:"announcement_number"`
	EffectiveFrom      string                 `json:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo        string                 `json:"effective_to" validate:"omitempty,datetime=2006-01-02"`
	ChangeReason       string                 `json:"change_reason"`
}

// ManufacturerInput creates a manufacturer cost.
type ManufacturerInput struct {
	EquipmentType business.EquipmentType `json:"equipment_type" validate:"required"`
	EquipmentName string                 `json:"equipment_name" validate:"required"`
	Manufacturer  string                 `json:"manufacturer" validate:"required"`
	CostPrice     float64                `json:"cost_price" validate:"gt=0"`
	EffectiveFrom string                 `json:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo   string                 `json:"effective_to" validate:"omitempty,datetime=2006-01-02"`
	Notes         *string                `json:"notes"`
}

// InstallationInput creates a base installation cost.
type InstallationInput struct {
	EquipmentType        business.EquipmentType `json:"equipment_type" validate:"required"`
	EquipmentName        string                 `json:"equipment_name" validate:"required"`
	BaseInstallationCost *float64               `json:"base_installation_cost" validate:"required,gte=0"`
	EffectiveFrom        string                 `json:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo          string                 `json:"effective_to" validate:"omitempty,datetime=2006-01-02"`
	Notes                *string                `json:"notes"`
}

// SurveyInput creates a survey fee.
type SurveyInput struct {
	SurveyType    SurveyType `json:"survey_type" validate:"required"`
	SurveyName    string     `json:"survey_name" validate:"required"`
	BaseCost      *float64   `json:"base_cost" validate:"required,gte=0"`
	EffectiveFrom string     `json:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo   string     `json:"effective_to" validate:"omitempty,datetime=2006-01-02"`
	ChangeReason  string     `json:"change_reason"`
}

// CommissionInput creates a sales office setting.
type CommissionInput struct {
	SalesOffice          string         `json:"sales_office" validate:"required"`
	CommissionType       CommissionType `json:"commission_type" validate:"required,oneof=percentage per_unit"`
	CommissionPercentage *float64       `json:"commission_percentage" validate:"omitempty,gte=0,lte=100"`
	CommissionPerUnit    *float64       `json:"commission_per_unit" validate:"omitempty,gte=0"`
	EffectiveFrom        string         `json:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo          string         `json:"effective_to" validate:"omitempty,datetime=2006-01-02"`
	ChangeReason         string         `json:"change_reason"`
}

// Validate checks the per-type amount.
func (in CommissionInput) Validate() error {
	if err := httpx.Validate(in); err != nil {
		return err
	}
	if in.CommissionType == CommissionPercentage && in.CommissionPercentage == nil {
		return fmt.Errorf("%w: %w: commission_percentage", httpx.ErrValidation, ErrCommissionValue)
	}
	if in.CommissionType == CommissionPerUnit && in.CommissionPerUnit == nil {
		return fmt.Errorf("%w: %w: commission_per_unit", httpx.ErrValidation, ErrCommissionValue)
	}
	return nil
}

// Validate checks the survey type.
func (in SurveyInput) Validate() error {
	if err := httpx.Validate(in); err != nil {
		return err
	}
	if !in.SurveyType.Valid() {
		return fmt.Errorf("%w: %w: %q", httpx.ErrValidation, ErrInvalidSurveyType, in.SurveyType)
	}
	return nil
}

func parseWindow(from, to string) (time.Time, *time.Time, error) {
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: effective_from: %v", httpx.ErrValidation, err)
	}
	if to == "" {
		return start, nil, nil
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: effective_to: %v", httpx.ErrValidation, err)
	}
	if !end.After(start) {
		return time.Time{}, nil, fmt.Errorf("%w: effective_to must be after effective_from", httpx.ErrValidation)
	}
	return start, &end, nil
}

func validEquipment(t business.EquipmentType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown equipment_type %q", httpx.ErrValidation, t)
	}
	return nil
}

// Saved is the outcome of a create: the stored row and whether it replaced an active one.
type Saved[T any] struct {
	Row      T
	IsUpdate bool
}

// CreateGovernment inserts an official price, superseding the active one.
func (s *Service) CreateGovernment(ctx context.Context, in GovernmentInput, actor Actor) (Saved[GovernmentPrice], error) {
	if err := httpx.Validate(in); err != nil {
		return Saved[GovernmentPrice]{}, err
	}
	if err := validEquipment(in.EquipmentType); err != nil {
		return Saved[GovernmentPrice]{}, err
	}
	from, to, err := parseWindow(in.EffectiveFrom, in.EffectiveTo)
	if err != nil {
		return Saved[GovernmentPrice]{}, err
	}
	c := change{
		table: TableGovernment,
		keys:  []column{{"equipment_type", string(in.EquipmentType)}},
		values: []column{
			{"equipment_type", string(in.EquipmentType)},
			{"equipment_name", in.EquipmentName},
			{"official_price", in.OfficialPrice},
			{"manufacturer_price", in.ManufacturerPrice},
			{"installation_cost", in.InstallationCost},
			{"announcement_number", in.AnnouncementNumber},
		},
		from: from, to: to,
		changeType:    "price_update",
		changedFields: []string{"official_price", "manufacturer_price", "installation_cost"},
		reason:        orDefault(in.ChangeReason, "원가 업데이트"),
		subject:       in.EquipmentName,
	}
	return create(ctx, s, c, actor, (*Repository).ListGovernment)
}

// CreateManufacturer inserts a manufacturer cost, superseding the active one
// for the same equipment type and manufacturer.
func (s *Service) CreateManufacturer(ctx context.Context, in ManufacturerInput, actor Actor) (Saved[ManufacturerPrice], error) {
	if err := httpx.Validate(in); err != nil {
		return Saved[ManufacturerPrice]{}, err
	}
	if err := validEquipment(in.EquipmentType); err != nil {
		return Saved[ManufacturerPrice]{}, err
	}
	from, to, err := parseWindow(in.EffectiveFrom, in.EffectiveTo)
	if err != nil {
		return Saved[ManufacturerPrice]{}, err
	}
	code := business.ManufacturerCode(in.Manufacturer)
	reason := "제조사 원가 업데이트"
	if in.Notes != nil && *in.Notes != "" {
		reason = *in.Notes
	}
	c := change{
		table: TableManufacturer,
		keys:  []column{{"equipment_type", string(in.EquipmentType)}, {"manufacturer", code}},
		values: []column{
			{"equipment_type", string(in.EquipmentType)},
			{"equipment_name", in.EquipmentName},
			{"manufacturer", code},
			{"cost_price", in.CostPrice},
			{"notes", in.Notes},
		},
		from: from, to: to,
		changeType:    "cost_update",
		changedFields: []string{"cost_price"},
		reason:        reason,
		subject:       in.EquipmentName,
	}
	return create(ctx, s, c, actor, (*Repository).ListManufacturer)
}

// CreateInstallation inserts a base installation cost.
func (s *Service) CreateInstallation(ctx context.Context, in InstallationInput, actor Actor) (Saved[InstallationCost], error) {
	if err := httpx.Validate(in); err != nil {
		return Saved[InstallationCost]{}, err
	}
	if err := validEquipment(in.EquipmentType); err != nil {
		return Saved[InstallationCost]{}, err
	}
	from, to, err := parseWindow(in.EffectiveFrom, in.EffectiveTo)
	if err != nil {
		return Saved[InstallationCost]{}, err
	}
	c := change{
		table: TableInstallation,
		keys:  []column{{"equipment_type", string(in.EquipmentType)}},
		values: []column{
			{"equipment_type", string(in.EquipmentType)},
			{"equipment_name", in.EquipmentName},
			{"base_installation_cost", *in.BaseInstallationCost},
			{"notes", in.Notes},
		},
		from: from, to: to,
		changeType:    "cost_update",
		changedFields: []string{"base_installation_cost"},
		reason:        "기본 설치비 업데이트",
		subject:       in.EquipmentName,
	}
	return create(ctx, s, c, actor, (*Repository).ListInstallation)
}

// CreateSurvey inserts a survey fee.
func (s *Service) CreateSurvey(ctx context.Context, in SurveyInput, actor Actor) (Saved[SurveyCost], error) {
	if err := in.Validate(); err != nil {
		return Saved[SurveyCost]{}, err
	}
	from, to, err := parseWindow(in.EffectiveFrom, in.EffectiveTo)
	if err != nil {
		return Saved[SurveyCost]{}, err
	}
	c := change{
		table: TableSurvey,
		keys:  []column{{"survey_type", string(in.SurveyType)}},
		values: []column{
			{"survey_type", string(in.SurveyType)},
			{"survey_name", in.SurveyName},
			{"base_cost", *in.BaseCost},
		},
		from: from, to: to,
		changeType:    "cost_update",
		changedFields: []string{"base_cost"},
		reason:        orDefault(in.ChangeReason, "실사비용 업데이트"),
		subject:       in.SurveyName,
	}
	return create(ctx, s, c, actor, (*Repository).ListSurvey)
}

// CreateCommission upserts a sales office setting keyed by (office, effective_from).
func (s *Service) CreateCommission(ctx context.Context, in CommissionInput, actor Actor) (Saved[CommissionSetting], error) {
	if err := in.Validate(); err != nil {
		return Saved[CommissionSetting]{}, err
	}
	from, to, err := parseWindow(in.EffectiveFrom, in.EffectiveTo)
	if err != nil {
		return Saved[CommissionSetting]{}, err
	}
	var pct, perUnit *float64
	if in.CommissionType == CommissionPercentage {
		pct = in.CommissionPercentage
	} else {
		perUnit = in.CommissionPerUnit
	}
	c := change{
		table: TableCommission,
		keys:  []column{{"sales_office", in.SalesOffice}},
		values: []column{
			{"sales_office", in.SalesOffice},
			{"commission_type", string(in.CommissionType)},
			{"commission_percentage", pct},
			{"commission_per_unit", perUnit},
		},
		from: from, to: to,
		conflict:      []string{"sales_office", "effective_from"},
		changeType:    "commission_update",
		changedFields: []string{"commission_type", "commission_percentage", "commission_per_unit"},
		reason:        orDefault(in.ChangeReason, "영업비용 설정 업데이트"),
		subject:       in.SalesOffice,
	}
	return create(ctx, s, c, actor, (*Repository).ListCommission)
}

func create[T any](ctx context.Context, s *Service, c change, actor Actor,
	load func(*Repository, context.Context, ListFilter) ([]T, error)) (Saved[T], error) {
	var out Saved[T]
	err := s.repo.WithTx(ctx, func(tx *Repository) error {
		res, err := tx.supersede(ctx, c, actor)
		if err != nil {
			return err
		}
		rows, err := load(tx, ctx, ListFilter{ID: res.id, IncludeInactive: true})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("%s %s: %w", c.table, res.id, httpx.ErrNotFound)
		}
		out = Saved[T]{Row: rows[0], IsUpdate: res.superseded}
		return nil
	})
	if err != nil {
		return Saved[T]{}, err
	}
	s.logger.Info("pricing saved",
		slog.String("table", string(c.table)),
		slog.String("subject", c.subject),
		slog.Bool("is_update", out.IsUpdate),
		slog.String("user_id", actor.UserID))
	s.invalidate(ctx)
	return out, nil
}

// Deactivate closes a row with effective_to set to today.
func (s *Service) Deactivate(ctx context.Context, table Table, id string, actor Actor) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", httpx.ErrValidation)
	}
	today := truncateDay(s.now())
	err := s.repo.WithTx(ctx, func(tx *Repository) error {
		return tx.deactivate(ctx, table, id, today, subjectOf(table), actor)
	})
	if err != nil {
		return err
	}
	s.logger.Info("pricing deactivated", slog.String("table", string(table)), slog.String("id", id))
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("dashboard cache bump failed", slog.Any("error", err))
	}
}

func subjectOf(table Table) func(json.RawMessage) string {
	return func(raw json.RawMessage) string {
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			return ""
		}
		for _, key := range []string{"equipment_name", "survey_name", "sales_office"} {
			if v, ok := row[key].(string); ok && v != "" {
				return v
			}
		}
		return string(table)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
