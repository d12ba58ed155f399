package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskChallanOverdueSweep flips past-due PENDING challans to OVERDUE.
	TaskChallanOverdueSweep = "challans:overdue_sweep"
	// TaskReportWarmup pre-populates the report caches.
	TaskReportWarmup = "reports:warmup"
)

// OverdueSweepPayload parameterises one sweep run. AsOf zero means "now".
type OverdueSweepPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// NewOverdueSweepTask constructs the sweep task.
func NewOverdueSweepTask(payload OverdueSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskChallanOverdueSweep, data), nil
}

// NewReportWarmupTask constructs the warmup task.
func NewReportWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskReportWarmup, nil)
}
