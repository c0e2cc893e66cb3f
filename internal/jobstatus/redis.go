package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "findoc:task:"
	defaultTTL = 24 * time.Hour
)

// RedisStore keeps task state in Redis so the API and the worker share
// live status across processes. Entries expire after TTL; the durable
// record in Postgres outlives them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, ttl: defaultTTL}, nil
}

func (s *RedisStore) Set(ctx context.Context, state TaskState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal task state: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+state.TaskID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set task state: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, keyPrefix+taskID).Err(); err != nil {
		return fmt.Errorf("delete task state: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, taskID string) (TaskState, error) {
	raw, err := s.client.Get(ctx, keyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TaskState{}, ErrNotFound
		}
		return TaskState{}, fmt.Errorf("get task state: %w", err)
	}
	var state TaskState
	if err := json.Unmarshal(raw, &state); err != nil {
		return TaskState{}, fmt.Errorf("unmarshal task state: %w", err)
	}
	return state, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
