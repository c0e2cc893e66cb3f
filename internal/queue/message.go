package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageVersion guards against schema drift between publisher and worker.
const MessageVersion = 1

// Message is the wire payload for one queued analysis job.
type Message struct {
	Version    int       `json:"version"`
	RequestID  string    `json:"request_id"`
	TaskID     string    `json:"task_id"`
	StorageKey string    `json:"storage_key"`
	Query      string    `json:"query"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Encode serializes the message for publishing.
func Encode(msg Message) ([]byte, error) {
	if msg.Version == 0 {
		msg.Version = MessageVersion
	}
	if err := validate(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Decode parses and validates a wire payload.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode queue message: %w", err)
	}
	if msg.Version != MessageVersion {
		return Message{}, fmt.Errorf("unsupported message version %d", msg.Version)
	}
	if err := validate(msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func validate(msg Message) error {
	if msg.RequestID == "" {
		return fmt.Errorf("queue message missing request_id")
	}
	if msg.TaskID == "" {
		return fmt.Errorf("queue message missing task_id")
	}
	return nil
}
