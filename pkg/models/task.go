package models

import (
	"github.com/luci/swarmsched/ent"
	"github.com/luci/swarmsched/ent/schema"
)

// NewTaskRequest is the body of POST /tasks/new.
type NewTaskRequest struct {
	Name                 string                `json:"name"`
	User                 string                `json:"user"`
	Priority             uint8                 `json:"priority"`
	Commands             [][]string            `json:"commands"`
	Data                 []schema.TaskInputRef `json:"data,omitempty"`
	Dimensions           map[string]string     `json:"dimensions"`
	Env                  map[string]string     `json:"env,omitempty"`
	ExecutionTimeoutSecs int                   `json:"execution_timeout_secs"`
	IOTimeoutSecs        int                   `json:"io_timeout_secs"`
	ExpirationSecs       int                   `json:"expiration_secs"`
}

// NewTaskResponse is the body returned by POST /tasks/new.
type NewTaskResponse struct {
	Request *ent.TaskRequest `json:"request"`
	TaskID  string           `json:"task_id"`
}

// CancelTaskRequest is the body of POST /tasks/cancel.
type CancelTaskRequest struct {
	TaskID string `json:"task_id"`
}

// CancelTaskResponse is the body returned by POST /tasks/cancel.
type CancelTaskResponse struct {
	OK         bool `json:"ok"`
	WasRunning bool `json:"was_running"`
}

// TaskListFilters contains filtering and pagination options for GET /tasks/list.
type TaskListFilters struct {
	Name   string `json:"name,omitempty"`
	User   string `json:"user,omitempty"`
	State  string `json:"state,omitempty"`
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Sort   string `json:"sort,omitempty"`
}

// TaskListResponse is the paginated body of GET /tasks/list.
type TaskListResponse struct {
	Tasks      []*ent.TaskResultSummary `json:"tasks"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

// TaskOutputResponse is the body of GET /task/<id>/output/<cmd_index>.
type TaskOutputResponse struct {
	Output string `json:"output"`
}

// TaskOutputAllResponse is the body of GET /task/<id>/output/all.
type TaskOutputAllResponse struct {
	Outputs []string `json:"outputs"`
}
