package workerproc

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"findoc-backend/internal/queue"
)

type fakeProcessor struct {
	requestID string
	taskID    string
	calls     int
	err       error
}

func (p *fakeProcessor) Process(_ context.Context, requestID, taskID string) error {
	p.calls++
	p.requestID = requestID
	p.taskID = taskID
	return p.err
}

func encodedMessage(t *testing.T) []byte {
	t.Helper()
	body, err := queue.Encode(queue.Message{
		RequestID:  "req-1",
		TaskID:     "task-1",
		StorageKey: "a/b.pdf",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return body
}

func TestParseMessageEmptyBody(t *testing.T) {
	for _, body := range [][]byte{nil, []byte(""), []byte("   \n")} {
		_, _, err := ParseMessage(body)
		var empty ErrEmptyBody
		if !errors.As(err, &empty) {
			t.Fatalf("expected ErrEmptyBody for %q, got %v", body, err)
		}
	}
}

func TestParseMessageBadPayload(t *testing.T) {
	for _, body := range [][]byte{[]byte("{not json"), []byte(`{"version":1}`)} {
		_, _, err := ParseMessage(body)
		var decode ErrDecode
		if !errors.As(err, &decode) {
			t.Fatalf("expected ErrDecode for %q, got %v", body, err)
		}
	}
}

func TestParseMessageOK(t *testing.T) {
	body := encodedMessage(t)

	msg, meta, err := ParseMessage(body)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.RequestID != "req-1" || msg.TaskID != "task-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if meta.BodyLen != len(body) || meta.BodySHA == "" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestHandleMessageInvokesProcessor(t *testing.T) {
	proc := &fakeProcessor{}
	if err := HandleMessage(context.Background(), proc, encodedMessage(t)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if proc.calls != 1 || proc.requestID != "req-1" || proc.taskID != "task-1" {
		t.Fatalf("processor not invoked as expected: %+v", proc)
	}
}

func TestHandleMessageWrapsProcessorError(t *testing.T) {
	cause := errors.New("db down")
	proc := &fakeProcessor{err: cause}

	err := HandleMessage(context.Background(), proc, encodedMessage(t))
	var pe ErrProcess
	if !errors.As(err, &pe) {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if pe.RequestID != "req-1" || pe.TaskID != "task-1" {
		t.Fatalf("identifiers not carried: %+v", pe)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not wrapped")
	}
}

func TestHandleMessageDoesNotProcessPoison(t *testing.T) {
	proc := &fakeProcessor{}
	err := HandleMessage(context.Background(), proc, []byte("{broken"))
	var decode ErrDecode
	if !errors.As(err, &decode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if proc.calls != 0 {
		t.Fatalf("poison message must not reach the processor")
	}
}

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error { a.acks++; return nil }

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

type ctxCheckingProcessor struct {
	canceled bool
	calls    int
}

func (p *ctxCheckingProcessor) Process(ctx context.Context, requestID, taskID string) error {
	p.calls++
	if ctx.Err() != nil {
		p.canceled = true
		return ctx.Err()
	}
	return nil
}

func TestHandleRunsJobAfterConsumerShutdown(t *testing.T) {
	proc := &ctxCheckingProcessor{}
	ack := &fakeAcknowledger{}
	h := &DeliveryHandler{Processor: proc, Timeout: time.Minute}

	// The consumer context is already canceled, as it is for every job
	// drained from the channel after SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.Handle(ctx, amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: encodedMessage(t)})

	if proc.calls != 1 {
		t.Fatalf("job must still run after shutdown, calls=%d", proc.calls)
	}
	if proc.canceled {
		t.Fatalf("job context must be detached from the consumer context")
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("expected ack, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}

func TestHandleRoutesRetryableFailureToRetryQueue(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db down")}
	ack := &fakeAcknowledger{}
	var retried [][]byte
	h := &DeliveryHandler{
		Processor:  proc,
		Timeout:    time.Minute,
		MaxRetries: 3,
		RetryPublish: func(body []byte) error {
			retried = append(retried, body)
			return nil
		},
	}

	body := encodedMessage(t)
	h.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body})

	if len(retried) != 1 {
		t.Fatalf("expected one retry publish, got %d", len(retried))
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("retried delivery must be acked, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}

func TestHandleDeadLettersAfterMaxRetries(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("db down")}
	ack := &fakeAcknowledger{}
	var retried int
	h := &DeliveryHandler{
		Processor:  proc,
		Timeout:    time.Minute,
		MaxRetries: 3,
		RetryPublish: func(body []byte) error {
			retried++
			return nil
		},
	}

	h.Handle(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         encodedMessage(t),
		Headers: amqp.Table{
			"x-death": []interface{}{amqp.Table{"count": int64(3)}},
		},
	})

	if retried != 0 {
		t.Fatalf("exhausted delivery must not be republished")
	}
	if ack.nacks != 1 || ack.requeue {
		t.Fatalf("expected nack without requeue, got nacks=%d requeue=%v", ack.nacks, ack.requeue)
	}
}

func TestHandleDeadLettersPoisonWithoutRetry(t *testing.T) {
	proc := &fakeProcessor{}
	ack := &fakeAcknowledger{}
	var retried int
	h := &DeliveryHandler{
		Processor:    proc,
		Timeout:      time.Minute,
		MaxRetries:   3,
		RetryPublish: func(body []byte) error { retried++; return nil },
	}

	h.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("{broken")})

	if proc.calls != 0 {
		t.Fatalf("poison message must not reach the processor")
	}
	if retried != 0 {
		t.Fatalf("poison message must not be retried")
	}
	if ack.nacks != 1 || ack.requeue {
		t.Fatalf("expected nack without requeue, got nacks=%d requeue=%v", ack.nacks, ack.requeue)
	}
}
