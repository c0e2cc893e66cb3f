package jobstatus

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, TaskState{TaskID: "t1", RequestID: "r1", State: StatePending}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StatePending || got.RequestID != "r1" {
		t.Fatalf("unexpected state: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatalf("expected UpdatedAt to be stamped")
	}
}

func TestMemoryStoreOverwrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, TaskState{TaskID: "t1", State: StatePending})
	_ = store.Set(ctx, TaskState{TaskID: "t1", State: StateSuccess, Detail: "done"})

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != StateSuccess || got.Detail != "done" {
		t.Fatalf("expected overwritten state, got %+v", got)
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Set(context.Background(), TaskState{TaskID: "t1", State: StatePending}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(context.Background(), "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing key is a no-op.
	if err := store.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}
