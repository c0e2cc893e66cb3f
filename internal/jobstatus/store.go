package jobstatus

import (
	"context"
	"errors"
	"time"
)

// Task lifecycle states as reported to clients polling by task ID.
const (
	StatePending = "pending"
	StateStarted = "started"
	StateSuccess = "success"
	StateFailure = "failure"
)

// ErrNotFound is returned when no state exists for a task ID.
var ErrNotFound = errors.New("task state not found")

// TaskState is the live view of one queued analysis run.
type TaskState struct {
	TaskID    string    `json:"task_id"`
	RequestID string    `json:"request_id"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists task state for polling, independent of the record store.
type Store interface {
	Set(ctx context.Context, state TaskState) error
	Get(ctx context.Context, taskID string) (TaskState, error)
	Delete(ctx context.Context, taskID string) error
}
