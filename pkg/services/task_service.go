package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/ent/taskoutputchunk"
	"github.com/luci/swarmsched/ent/taskresultsummary"
	"github.com/luci/swarmsched/internal/fingerprint"
	"github.com/luci/swarmsched/internal/lifecycle"
	"github.com/luci/swarmsched/internal/taskqueue"
)

// TaskService implements the client-facing task surface: submitting,
// cancelling, listing, and reading back tasks created through
// internal/taskqueue.
type TaskService struct {
	client        *ent.Client
	priorityFloor uint8
}

// NewTaskService builds a TaskService. priorityFloor is the lowest (best)
// priority value a request is allowed to ask for; anything better than that
// is clamped up to it (spec.md §4.1) so one client cannot starve the rest of
// the queue by always submitting priority 0.
func NewTaskService(client *ent.Client, priorityFloor uint8) *TaskService {
	return &TaskService{client: client, priorityFloor: priorityFloor}
}

// NewTaskSpec is the validated input to NewTask.
type NewTaskSpec = taskqueue.NewTaskSpec

// NewTask validates and enqueues a task request.
func (s *TaskService) NewTask(ctx context.Context, spec NewTaskSpec) (*ent.TaskRequest, error) {
	if spec.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if spec.User == "" {
		return nil, NewValidationError("user", "required")
	}
	if len(spec.Commands) == 0 {
		return nil, NewValidationError("commands", "at least one command is required")
	}
	if len(spec.Dimensions) == 0 {
		return nil, NewValidationError("dimensions", "at least one dimension is required")
	}
	if spec.ExecutionTimeoutSecs <= 0 {
		return nil, NewValidationError("execution_timeout_secs", "must be positive")
	}
	if spec.ExpirationSecs <= 0 {
		return nil, NewValidationError("expiration_secs", "must be positive")
	}
	if spec.Priority < s.priorityFloor {
		// Lower is higher priority; clamp up (worsen) requests that ask for
		// more priority than the floor allows.
		spec.Priority = s.priorityFloor
	}

	return taskqueue.Enqueue(ctx, s.client, spec)
}

// CancelTask cancels a task regardless of whether it is still pending or
// already running, routing to the matching internal/taskqueue operation.
func (s *TaskService) CancelTask(ctx context.Context, taskID string) (wasRunning bool, err error) {
	summary, err := s.client.TaskResultSummary.Get(ctx, taskID)
	if err != nil {
		if ent.IsNotFound(err) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("loading task_result_summary: %w", err)
	}

	switch string(summary.State) {
	case lifecycle.Running:
		return true, taskqueue.CancelRunning(ctx, s.client, taskID)
	default:
		return false, taskqueue.Abort(ctx, s.client, taskID)
	}
}

// GetTask returns a task's current summary.
func (s *TaskService) GetTask(ctx context.Context, taskID string) (*ent.TaskResultSummary, error) {
	summary, err := s.client.TaskResultSummary.Get(ctx, taskID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading task_result_summary: %w", err)
	}
	return summary, nil
}

// GetTaskRequest returns the original request a task was submitted with.
func (s *TaskService) GetTaskRequest(ctx context.Context, taskID string) (*ent.TaskRequest, error) {
	summary, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	req, err := s.client.TaskRequest.Get(ctx, summary.RequestID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading task_request: %w", err)
	}
	return req, nil
}

// TaskListFilters narrows and paginates ListTasks.
type TaskListFilters struct {
	Name   string
	User   string
	State  string
	Limit  int
	Offset int
}

// ListTasks returns a page of task summaries ordered newest first.
func (s *TaskService) ListTasks(ctx context.Context, filters TaskListFilters) ([]*ent.TaskResultSummary, error) {
	query := s.client.TaskResultSummary.Query()

	if filters.Name != "" {
		query = query.Where(taskresultsummary.NameEQ(filters.Name))
	}
	if filters.User != "" {
		query = query.Where(taskresultsummary.UserEQ(filters.User))
	}
	if filters.State != "" {
		query = query.Where(taskresultsummary.StateEQ(taskresultsummary.State(filters.State)))
	}

	limit := filters.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	tasks, err := query.
		Order(ent.Desc(taskresultsummary.FieldCreatedTs)).
		Limit(limit).
		Offset(offset).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// GetTaskOutput returns the concatenated, ordered output bytes for one
// command of a task's current (only) try.
func (s *TaskService) GetTaskOutput(ctx context.Context, taskID string, commandIndex int) (string, error) {
	summary, err := s.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	runResultID := fingerprint.RunResultID(summary.ID, summary.TryNumber)

	chunks, err := s.client.TaskOutputChunk.Query().
		Where(
			taskoutputchunk.RunResultIDEQ(runResultID),
			taskoutputchunk.CommandIndexEQ(commandIndex),
		).
		Order(ent.Asc(taskoutputchunk.FieldChunkIndex)).
		All(ctx)
	if err != nil {
		return "", fmt.Errorf("listing output chunks: %w", err)
	}

	var b strings.Builder
	for _, c := range chunks {
		b.Write(c.Data)
	}
	return b.String(), nil
}

// GetTaskOutputAll returns the concatenated output for every command the
// task's request declared, in command order.
func (s *TaskService) GetTaskOutputAll(ctx context.Context, taskID string) ([]string, error) {
	summary, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	runResultID := fingerprint.RunResultID(summary.ID, summary.TryNumber)

	chunks, err := s.client.TaskOutputChunk.Query().
		Where(taskoutputchunk.RunResultIDEQ(runResultID)).
		Order(ent.Asc(taskoutputchunk.FieldCommandIndex), ent.Asc(taskoutputchunk.FieldChunkIndex)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing output chunks: %w", err)
	}

	byCommand := make(map[int]*strings.Builder)
	for _, c := range chunks {
		b, ok := byCommand[c.CommandIndex]
		if !ok {
			b = &strings.Builder{}
			byCommand[c.CommandIndex] = b
		}
		b.Write(c.Data)
	}

	indices := make([]int, 0, len(byCommand))
	for idx := range byCommand {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	outputs := make([]string, len(indices))
	for i, idx := range indices {
		outputs[i] = byCommand[idx].String()
	}
	return outputs, nil
}
