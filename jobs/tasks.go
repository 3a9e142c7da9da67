package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionIntegrityScan walks the permission graph looking for
	// structural drift: missing parents, enabled children under disabled
	// parents, and parent cycles.
	TaskPermissionIntegrityScan = "rbac:integrity_scan"
)

// IntegrityScanPayload tunes a scan run.
type IntegrityScanPayload struct {
	// MaxDepth bounds the ancestor walk used for cycle detection.
	MaxDepth int `json:"maxDepth"`
}

// NewPermissionIntegrityScanTask constructs an Asynq task.
func NewPermissionIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionIntegrityScan, data), nil
}
