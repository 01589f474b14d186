// Package jobs holds the background task definitions and the Asynq worker.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStorageSweep removes temp files abandoned by cancelled uploads.
	TaskStorageSweep = "storage:sweep_tmp"
)

// StorageSweepPayload configures one sweep run.
type StorageSweepPayload struct {
	Root      string        `json:"root"`
	OlderThan time.Duration `json:"older_than"`
}

// NewStorageSweepTask constructs an Asynq task for the temp-file sweeper.
func NewStorageSweepTask(payload StorageSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStorageSweep, data), nil
}
