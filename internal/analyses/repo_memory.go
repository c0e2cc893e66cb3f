package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores analysis requests in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]AnalysisRequest
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]AnalysisRequest)}
}

func (r *MemoryRepo) Create(ctx context.Context, rec AnalysisRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (AnalysisRequest, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisRequest{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return AnalysisRequest{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) GetByTaskID(ctx context.Context, taskID string) (AnalysisRequest, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisRequest{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.byID {
		if rec.TaskID == taskID {
			return rec, nil
		}
	}
	return AnalysisRequest{}, ErrNotFound
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]AnalysisRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	items := make([]AnalysisRequest, 0)
	for _, rec := range r.byID {
		if rec.UserID == userID {
			items = append(items, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	if offset >= len(items) {
		return []AnalysisRequest{}, nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end], nil
}

func (r *MemoryRepo) SetTaskID(ctx context.Context, id, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.TaskID = taskID
	rec.UpdatedAt = time.Now().UTC()
	r.byID[id] = rec
	return nil
}

func (r *MemoryRepo) MarkInProgress(ctx context.Context, id string, startedAt time.Time) error {
	return r.transition(ctx, id, StatusInProgress, func(rec *AnalysisRequest) {
		rec.StartedAt = &startedAt
	})
}

func (r *MemoryRepo) MarkCompleted(ctx context.Context, id, result string, completedAt time.Time) error {
	return r.transition(ctx, id, StatusCompleted, func(rec *AnalysisRequest) {
		rec.Result = result
		rec.CompletedAt = &completedAt
	})
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, id, errorMessage string, completedAt time.Time) error {
	return r.transition(ctx, id, StatusFailed, func(rec *AnalysisRequest) {
		rec.ErrorMessage = errorMessage
		rec.CompletedAt = &completedAt
	})
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *MemoryRepo) transition(ctx context.Context, id, next string, apply func(*AnalysisRequest)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !transitionAllowed(rec.Status, next) {
		return ErrInvalidTransition
	}
	rec.Status = next
	apply(&rec)
	rec.UpdatedAt = time.Now().UTC()
	r.byID[id] = rec
	return nil
}
