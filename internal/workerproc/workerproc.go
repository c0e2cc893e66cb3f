package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"findoc-backend/internal/queue"
	"findoc-backend/internal/shared/telemetry"
)

// Processor runs one analysis job end to end.
type Processor interface {
	Process(ctx context.Context, requestID, taskID string) error
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body []byte) MessageMeta {
	if len(body) == 0 {
		return MessageMeta{}
	}
	sum := sha256.Sum256(body)
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a payload that cannot be decoded. Such messages
// are poison and must not be redelivered.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	RequestID string
	TaskID    string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process analysis"
	}
	return "process analysis: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body []byte) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if len(strings.TrimSpace(string(body))) == 0 {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}
	msg, err := queue.Decode(body)
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	return msg, meta, nil
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, processor Processor, body []byte) error {
	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}
	if err := processor.Process(ctx, msg.RequestID, msg.TaskID); err != nil {
		return ErrProcess{RequestID: msg.RequestID, TaskID: msg.TaskID, Err: err}
	}
	return nil
}

// DeliveryHandler turns broker deliveries into Process calls and settles
// them. Poison messages are nacked straight to the dead-letter queue;
// retryable failures are routed through the retry queue until MaxRetries
// trips past, then dead-lettered too.
type DeliveryHandler struct {
	Processor  Processor
	Timeout    time.Duration
	MaxRetries int64

	// RetryPublish republishes a body onto the retry queue. Nil disables
	// retry routing and retryable failures dead-letter immediately.
	RetryPublish func(body []byte) error
}

// Handle runs one delivery. Each job gets its own deadline on a context
// detached from ctx: a canceled consumer context (shutdown) stops intake
// only and must not fail jobs already handed to a worker goroutine.
func (h *DeliveryHandler) Handle(ctx context.Context, d amqp.Delivery) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := HandleMessage(jobCtx, h.Processor, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			telemetry.Error("worker.ack_failed", map[string]any{"error": ackErr.Error()})
		}
		return
	}

	switch err.(type) {
	case ErrEmptyBody, ErrDecode:
		telemetry.Error("worker.poison_message", map[string]any{"error": err.Error()})
		_ = d.Nack(false, false)
		return
	}

	attempts := deliveryRetryCount(d)
	if h.RetryPublish == nil || attempts >= h.MaxRetries {
		telemetry.Error("worker.job_dead_lettered", map[string]any{
			"attempts": attempts,
			"error":    err.Error(),
		})
		_ = d.Nack(false, false)
		return
	}

	if pubErr := h.RetryPublish(d.Body); pubErr != nil {
		telemetry.Error("worker.retry_publish_failed", map[string]any{"error": pubErr.Error()})
		_ = d.Nack(false, false)
		return
	}
	telemetry.Warn("worker.job_retrying", map[string]any{
		"attempts": attempts,
		"error":    err.Error(),
	})
	if ackErr := d.Ack(false); ackErr != nil {
		telemetry.Error("worker.ack_failed", map[string]any{"error": ackErr.Error()})
	}
}

// deliveryRetryCount sums the broker's x-death counts, which track how
// many times the message has cycled through dead-letter routing.
func deliveryRetryCount(d amqp.Delivery) int64 {
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	var total int64
	for _, raw := range deaths {
		entry, ok := raw.(amqp.Table)
		if !ok {
			continue
		}
		if count, ok := entry["count"].(int64); ok {
			total += count
		}
	}
	return total
}
