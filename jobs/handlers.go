package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ecofacility/facility-erp/internal/closing"
	jobmetrics "github.com/ecofacility/facility-erp/internal/jobs"
	"github.com/ecofacility/facility-erp/internal/revenue"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ClosingRecomputer recomputes monthly closings.
type ClosingRecomputer interface {
	Compute(ctx context.Context, p closing.Period) (closing.Result, error)
	RecomputeRecent(ctx context.Context) ([]closing.Result, error)
}

// NotificationPurger removes long-expired notifications.
type NotificationPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// DashboardWarmer loads revenue dashboards through the cache.
type DashboardWarmer interface {
	Dashboard(ctx context.Context, q revenue.Query) (revenue.Dashboard, error)
}

// Jobs holds the task handlers and their dependencies.
type Jobs struct {
	Closings      ClosingRecomputer
	Notifications NotificationPurger
	Dashboards    DashboardWarmer
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
	clock         func() time.Time
}

// Handlers returns the task handlers to register with the worker.
func (j *Jobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskClosingRecompute, Handler: j.HandleClosingRecompute},
		{Type: TaskNotificationPurge, Handler: j.HandleNotificationPurge},
		{Type: TaskDashboardWarmup, Handler: j.HandleDashboardWarmup},
	}
}

// HandleClosingRecompute recomputes the requested month, or the previous and
// current month when the payload names none.
func (j *Jobs) HandleClosingRecompute(ctx context.Context, t *asynq.Task) error {
	if j.Closings == nil {
		return errors.New("closing recompute: handler not configured")
	}
	var payload ClosingRecomputePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskClosingRecompute)
	logger := j.logger(TaskClosingRecompute)

	if payload.Year > 0 || payload.Month > 0 {
		p := closing.Period{Year: payload.Year, Month: payload.Month}
		if err := p.Validate(); err != nil {
			logger.Warn("invalid closing period", slog.String("period", p.String()))
			return tracker.End(errors.Join(err, asynq.SkipRetry))
		}
		if _, err := j.Closings.Compute(ctx, p); err != nil {
			logger.Error("recompute closing", slog.String("period", p.String()), slog.Any("error", err))
			return tracker.End(err)
		}
		j.metrics().AddProcessed(TaskClosingRecompute, 1)
		logger.Info("closing recomputed", slog.String("period", p.String()))
		return tracker.End(nil)
	}

	results, err := j.Closings.RecomputeRecent(ctx)
	if err != nil {
		logger.Error("recompute recent closings", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddProcessed(TaskClosingRecompute, len(results))
	logger.Info("recent closings recomputed", slog.Int("months", len(results)))
	return tracker.End(nil)
}

// HandleNotificationPurge deletes notifications expired for over a week.
func (j *Jobs) HandleNotificationPurge(ctx context.Context, _ *asynq.Task) error {
	if j.Notifications == nil {
		return errors.New("notification purge: handler not configured")
	}
	tracker := j.metrics().Track(TaskNotificationPurge)
	n, err := j.Notifications.PurgeExpired(ctx)
	if err != nil {
		j.logger(TaskNotificationPurge).Error("purge notifications", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddProcessed(TaskNotificationPurge, int(n))
	j.logger(TaskNotificationPurge).Info("expired notifications purged", slog.Int64("rows", n))
	return tracker.End(nil)
}

// HandleDashboardWarmup loads the default dashboard views so the first
// requests of the day hit the cache.
func (j *Jobs) HandleDashboardWarmup(ctx context.Context, _ *asynq.Task) error {
	if j.Dashboards == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	tracker := j.metrics().Track(TaskDashboardWarmup)
	logger := j.logger(TaskDashboardWarmup)
	now := j.now()

	queries := []revenue.Query{
		{},
		{Months: 6},
		{Year: now.Year()},
		{Year: now.Year() - 1},
	}
	warmed := 0
	for _, q := range queries {
		// Bound each view so one slow aggregate cannot hold the worker.
		qctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		_, err := j.Dashboards.Dashboard(qctx, q)
		cancel()
		if err != nil {
			logger.Error("warm dashboard", slog.Int("year", q.Year), slog.Int("months", q.Months), slog.Any("error", err))
			return tracker.End(err)
		}
		warmed++
	}
	j.metrics().AddProcessed(TaskDashboardWarmup, warmed)
	logger.Info("dashboards warmed", slog.Int("views", warmed), slog.Duration("duration", time.Since(now)))
	return tracker.End(nil)
}

func (j *Jobs) logger(job string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (j *Jobs) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *Jobs) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
