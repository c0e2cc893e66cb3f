package queue

import "context"

// Client publishes analysis jobs to a broker.
type Client interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}
