package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofacility/facility-erp/internal/closing"
	"github.com/ecofacility/facility-erp/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct{}

func (stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 3, Active: 1, Scheduled: 2, Retry: 1, Failed: 4}, nil
}

func (stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{
		ID:            "s-1",
		Type:          jobs.TaskDashboardWarmup,
		NextProcessAt: time.Date(2025, 5, 3, 6, 0, 0, 0, time.UTC),
	}}, nil
}

type stubClosings struct {
	periods []closing.Period
}

func (s *stubClosings) Compute(_ context.Context, p closing.Period) (closing.Result, error) {
	s.periods = append(s.periods, p)
	return closing.Result{
		Closing:       closing.Closing{Year: p.Year, Month: p.Month, TotalRevenue: 1200000, NetProfit: 400000},
		BusinessCount: 3,
	}, nil
}

type stubIssuer struct{}

func (stubIssuer) IssueFor(_ context.Context, id string) (string, time.Time, error) {
	return "signed." + id, time.Date(2025, 5, 3, 9, 0, 0, 0, time.UTC), nil
}

type fixture struct {
	queue    *stubEnqueuer
	closings *stubClosings
	env      Env
}

func newFixture() *fixture {
	f := &fixture{queue: &stubEnqueuer{}, closings: &stubClosings{}}
	f.env = Env{
		Jobs: func() (*JobsCLI, error) { return NewJobsCLIWith(f.queue, stubInspector{}), nil },
		Closings: func(context.Context) (ClosingComputer, error) {
			return f.closings, nil
		},
		Tokens: func(context.Context) (TokenIssuer, error) { return stubIssuer{}, nil },
	}
	return f
}

func run(t *testing.T, env Env, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(env)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJobsEnqueueKnownTask(t *testing.T) {
	f := newFixture()
	out, err := run(t, f.env, "jobs", "enqueue", jobs.TaskDashboardWarmup)
	require.NoError(t, err)
	assert.Equal(t, "enqueued dashboard:warmup (t-1)\n", out)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, jobs.TaskDashboardWarmup, f.queue.tasks[0].Type())
}

func TestJobsEnqueueUnknownTask(t *testing.T) {
	f := newFixture()
	_, err := run(t, f.env, "jobs", "enqueue", "mail:send")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task type")
	assert.Empty(t, f.queue.tasks)
}

func TestJobsStatsAndScheduled(t *testing.T) {
	f := newFixture()
	out, err := run(t, f.env, "jobs", "stats")
	require.NoError(t, err)
	var stats QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, QueueStats{Queue: "default", Pending: 3, Active: 1, Scheduled: 2, Retry: 1, Failed: 4}, stats)

	out, err = run(t, f.env, "jobs", "scheduled")
	require.NoError(t, err)
	assert.Equal(t, "s-1\tdashboard:warmup\t2025-05-03T06:00:00Z\n", out)
}

func TestClosingComputeInProcess(t *testing.T) {
	f := newFixture()
	out, err := run(t, f.env, "closing", "compute", "--year", "2025", "--month", "4")
	require.NoError(t, err)
	assert.Equal(t, []closing.Period{{Year: 2025, Month: 4}}, f.closings.periods)
	assert.Contains(t, out, `"businessCount": 3`)
	assert.Empty(t, f.queue.tasks)
}

func TestClosingComputeAsyncEnqueues(t *testing.T) {
	f := newFixture()
	out, err := run(t, f.env, "closing", "compute", "--year", "2025", "--month", "4", "--async")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "enqueued closing:recompute (t-1)"))
	require.Len(t, f.queue.tasks, 1)

	var payload jobs.ClosingRecomputePayload
	require.NoError(t, json.Unmarshal(f.queue.tasks[0].Payload(), &payload))
	assert.Equal(t, jobs.ClosingRecomputePayload{Year: 2025, Month: 4}, payload)
	assert.Empty(t, f.closings.periods)
}

func TestClosingComputeValidatesPeriod(t *testing.T) {
	f := newFixture()
	_, err := run(t, f.env, "closing", "compute", "--year", "2025", "--month", "13")
	require.Error(t, err)
	assert.Empty(t, f.closings.periods)

	_, err = run(t, f.env, "closing", "compute", "--year", "2025")
	require.Error(t, err)
}

func TestTokenIssue(t *testing.T) {
	out, err := run(t, newFixture().env, "token", "issue", "--user", "emp-7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"signed.emp-7","expiresAt":"2025-05-03T09:00:00Z"}`, out)
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, Env{}, "user", "hash-password", "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "$2a$"))
}

func TestUnconfiguredEnv(t *testing.T) {
	_, err := run(t, Env{}, "jobs", "stats")
	assert.Error(t, err)
	_, err = run(t, Env{}, "token", "issue", "--user", "emp-7")
	assert.Error(t, err)
}
