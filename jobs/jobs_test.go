package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofacility/facility-erp/internal/closing"
	jobmetrics "github.com/ecofacility/facility-erp/internal/jobs"
	"github.com/ecofacility/facility-erp/internal/revenue"
)

type stubClosings struct {
	computed []closing.Period
	recent   int
	err      error
}

func (s *stubClosings) Compute(_ context.Context, p closing.Period) (closing.Result, error) {
	s.computed = append(s.computed, p)
	return closing.Result{}, s.err
}

func (s *stubClosings) RecomputeRecent(context.Context) ([]closing.Result, error) {
	s.recent++
	return make([]closing.Result, 2), s.err
}

type stubPurger struct{ n int64 }

func (s stubPurger) PurgeExpired(context.Context) (int64, error) { return s.n, nil }

type stubDashboards struct {
	queries []revenue.Query
	err     error
}

func (s *stubDashboards) Dashboard(_ context.Context, q revenue.Query) (revenue.Dashboard, error) {
	s.queries = append(s.queries, q)
	return revenue.Dashboard{}, s.err
}

func newJobs(c *stubClosings, d *stubDashboards) *Jobs {
	return &Jobs{
		Closings:      c,
		Notifications: stubPurger{n: 4},
		Dashboards:    d,
		Metrics:       jobmetrics.NewMetrics(prometheus.NewRegistry()),
		clock:         func() time.Time { return time.Date(2025, 5, 2, 6, 0, 0, 0, time.UTC) },
	}
}

func TestClosingRecomputeDefaultsToRecentMonths(t *testing.T) {
	closings := &stubClosings{}
	task, err := NewClosingRecomputeTask(ClosingRecomputePayload{})
	require.NoError(t, err)

	require.NoError(t, newJobs(closings, nil).HandleClosingRecompute(context.Background(), task))
	assert.Equal(t, 1, closings.recent)
	assert.Empty(t, closings.computed)
}

func TestClosingRecomputeSingleMonth(t *testing.T) {
	closings := &stubClosings{}
	task, err := NewClosingRecomputeTask(ClosingRecomputePayload{Year: 2025, Month: 3})
	require.NoError(t, err)

	require.NoError(t, newJobs(closings, nil).HandleClosingRecompute(context.Background(), task))
	assert.Equal(t, []closing.Period{{Year: 2025, Month: 3}}, closings.computed)
}

func TestClosingRecomputeSkipsRetryOnBadPayload(t *testing.T) {
	jobs := newJobs(&stubClosings{}, nil)

	err := jobs.HandleClosingRecompute(context.Background(), asynq.NewTask(TaskClosingRecompute, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(ClosingRecomputePayload{Year: 2025, Month: 13})
	err = jobs.HandleClosingRecompute(context.Background(), asynq.NewTask(TaskClosingRecompute, payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestClosingRecomputePropagatesFailures(t *testing.T) {
	closings := &stubClosings{err: errors.New("connection refused")}
	task, err := NewClosingRecomputeTask(ClosingRecomputePayload{})
	require.NoError(t, err)
	assert.Error(t, newJobs(closings, nil).HandleClosingRecompute(context.Background(), task))
}

func TestNotificationPurge(t *testing.T) {
	require.NoError(t, newJobs(nil, nil).HandleNotificationPurge(context.Background(), NewNotificationPurgeTask()))
}

func TestDashboardWarmupLoadsDefaultViews(t *testing.T) {
	dashboards := &stubDashboards{}
	require.NoError(t, newJobs(nil, dashboards).HandleDashboardWarmup(context.Background(), NewDashboardWarmupTask()))
	assert.Equal(t, []revenue.Query{{}, {Months: 6}, {Year: 2025}, {Year: 2024}}, dashboards.queries)
}

func TestDashboardWarmupStopsOnError(t *testing.T) {
	dashboards := &stubDashboards{err: errors.New("timeout")}
	assert.Error(t, newJobs(nil, dashboards).HandleDashboardWarmup(context.Background(), NewDashboardWarmupTask()))
	assert.Len(t, dashboards.queries, 1)
}

func TestUnconfiguredHandlersFail(t *testing.T) {
	var jobs Jobs
	assert.Error(t, jobs.HandleNotificationPurge(context.Background(), NewNotificationPurgeTask()))
	assert.Error(t, jobs.HandleDashboardWarmup(context.Background(), NewDashboardWarmupTask()))
}

func TestNewTaskByType(t *testing.T) {
	for _, taskType := range TaskTypes {
		task, err := NewTask(taskType)
		require.NoError(t, err)
		assert.Equal(t, taskType, task.Type())
	}
	_, err := NewTask("mail:send")
	assert.Error(t, err)
}

func TestSchedule(t *testing.T) {
	entries, err := Schedule()
	require.NoError(t, err)
	specs := map[string]string{}
	for _, e := range entries {
		specs[e.Task.Type()] = e.Spec
	}
	assert.Equal(t, map[string]string{
		TaskClosingRecompute:  "0 2 * * *",
		TaskNotificationPurge: "0 3 * * *",
		TaskDashboardWarmup:   "0 6 * * *",
	}, specs)
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(nil, nil).health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","paused":false,"pending":0,"active":0,"scheduled":0,"retry":0,"failed":0}`, rr.Body.String())
}

func TestClientDeduplicatesPayloadlessTasks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := client.EnqueueContext(context.Background(), NewNotificationPurgeTask())
	require.NoError(t, err)
	_, err = client.EnqueueContext(context.Background(), NewNotificationPurgeTask())
	assert.ErrorIs(t, err, asynq.ErrDuplicateTask)
}

func TestWorkerDefaults(t *testing.T) {
	worker, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.NoError(t, err)
	assert.Nil(t, worker.scheduler)
	assert.NotNil(t, worker.logger)
}
