package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskClosingRecompute recomputes monthly closings.
	TaskClosingRecompute = "closing:recompute"
	// TaskNotificationPurge deletes long-expired notifications.
	TaskNotificationPurge = "notifications:purge"
	// TaskDashboardWarmup pre-populates the revenue dashboard cache.
	TaskDashboardWarmup = "dashboard:warmup"
)

// TaskTypes lists every task the worker handles.
var TaskTypes = []string{TaskClosingRecompute, TaskNotificationPurge, TaskDashboardWarmup}

// ClosingRecomputePayload names the month to recompute. A zero value means
// the previous and current month.
type ClosingRecomputePayload struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

// NewClosingRecomputeTask constructs a closing recompute task.
func NewClosingRecomputeTask(payload ClosingRecomputePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskClosingRecompute, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewNotificationPurgeTask constructs a notification purge task.
func NewNotificationPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskNotificationPurge, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// NewDashboardWarmupTask constructs a dashboard warmup task.
func NewDashboardWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskDashboardWarmup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// NewTask builds a payload-less task by type, as used by the admin CLI.
func NewTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskClosingRecompute:
		return NewClosingRecomputeTask(ClosingRecomputePayload{})
	case TaskNotificationPurge:
		return NewNotificationPurgeTask(), nil
	case TaskDashboardWarmup:
		return NewDashboardWarmupTask(), nil
	}
	return nil, fmt.Errorf("jobs: unknown task type %q", taskType)
}

// Schedule returns the cron registrations of the worker, in UTC.
func Schedule() ([]CronRegistration, error) {
	recompute, err := NewClosingRecomputeTask(ClosingRecomputePayload{})
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: "0 2 * * *", Task: recompute},
		{Spec: "0 3 * * *", Task: NewNotificationPurgeTask()},
		{Spec: "0 6 * * *", Task: NewDashboardWarmupTask()},
	}, nil
}
