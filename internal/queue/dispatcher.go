package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"findoc-backend/internal/jobstatus"
	"findoc-backend/internal/shared/telemetry"
)

// Runner executes a job in-process when no broker is configured.
type Runner func(ctx context.Context, msg Message)

// Dispatcher hands analysis jobs to the broker, or to an in-process
// goroutine in dev setups without RabbitMQ. It also owns the task-state
// record that clients poll.
type Dispatcher struct {
	client  Client
	runner  Runner
	status  jobstatus.Store
	timeout time.Duration
}

// NewDispatcher wires a dispatcher. client may be nil, in which case
// runner must be set and jobs execute in-process.
func NewDispatcher(client Client, runner Runner, status jobstatus.Store, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Dispatcher{client: client, runner: runner, status: status, timeout: timeout}
}

// Submit enqueues one analysis job and returns its task ID.
func (d *Dispatcher) Submit(ctx context.Context, requestID, storageKey, query string) (string, error) {
	taskID := uuid.NewString()
	msg := Message{
		Version:    MessageVersion,
		RequestID:  requestID,
		TaskID:     taskID,
		StorageKey: storageKey,
		Query:      query,
		EnqueuedAt: time.Now().UTC(),
	}

	// Pending state is best-effort: the durable record already exists,
	// so a state-store outage must not block the upload.
	if err := d.status.Set(ctx, jobstatus.TaskState{
		TaskID:    taskID,
		RequestID: requestID,
		State:     jobstatus.StatePending,
	}); err != nil {
		telemetry.Warn("dispatch.pending_state_failed", map[string]any{
			"task_id": taskID,
			"error":   err.Error(),
		})
	}

	if d.client != nil {
		if err := d.client.Publish(ctx, msg); err != nil {
			// The pending state must not outlive a job that was never
			// enqueued; a dangling task id has no owning record.
			if delErr := d.status.Delete(ctx, taskID); delErr != nil {
				telemetry.Warn("dispatch.pending_state_cleanup_failed", map[string]any{
					"task_id": taskID,
					"error":   delErr.Error(),
				})
			}
			return "", err
		}
		telemetry.Info("dispatch.published", map[string]any{
			"request_id": requestID,
			"task_id":    taskID,
		})
		return taskID, nil
	}

	// No broker: run in a detached context so the HTTP request finishing
	// does not cancel the pipeline.
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.runner(runCtx, msg)
	}()
	telemetry.Info("dispatch.inprocess", map[string]any{
		"request_id": requestID,
		"task_id":    taskID,
	})
	return taskID, nil
}

// PollStatus returns the live state for a task ID.
func (d *Dispatcher) PollStatus(ctx context.Context, taskID string) (jobstatus.TaskState, error) {
	return d.status.Get(ctx, taskID)
}
