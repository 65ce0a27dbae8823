// Package scheduler runs the periodic machinery around the dispatch engine:
// the cycle enqueuer, the asynq worker, and the task definitions they share.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskDispatchCycle runs one dispatch cycle for a tenant.
const TaskDispatchCycle = "dispatch.cycle"

// TaskWorkflowExecute runs due workflow steps for a tenant.
const TaskWorkflowExecute = "workflows.execute_pending"

// TaskResetDailyCounts zeroes every phone number's daily call counter.
const TaskResetDailyCounts = "numbers.reset_daily"

// TenantPayload scopes a task to one tenant.
type TenantPayload struct {
	TenantID string `json:"tenantId"`
}

// NewDispatchCycleTask builds a dispatch cycle task.
func NewDispatchCycleTask(payload TenantPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatchCycle, data), nil
}

// NewWorkflowExecuteTask builds a workflow execution task.
func NewWorkflowExecuteTask(payload TenantPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWorkflowExecute, data), nil
}

// NewResetDailyCountsTask builds the daily counter reset task.
func NewResetDailyCountsTask() *asynq.Task {
	return asynq.NewTask(TaskResetDailyCounts, nil)
}

// ParseTenantPayload decodes a tenant-scoped task payload.
func ParseTenantPayload(task *asynq.Task) (TenantPayload, error) {
	var payload TenantPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TenantPayload{}, err
	}
	return payload, nil
}
