package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for analysis requests. Status
// mutations enforce the forward-only lifecycle and return
// ErrInvalidTransition when violated.
type Repo interface {
	Create(ctx context.Context, rec AnalysisRequest) error
	GetByID(ctx context.Context, id string) (AnalysisRequest, error)
	GetByTaskID(ctx context.Context, taskID string) (AnalysisRequest, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]AnalysisRequest, error)
	SetTaskID(ctx context.Context, id, taskID string) error
	MarkInProgress(ctx context.Context, id string, startedAt time.Time) error
	MarkCompleted(ctx context.Context, id, result string, completedAt time.Time) error
	MarkFailed(ctx context.Context, id, errorMessage string, completedAt time.Time) error
	Delete(ctx context.Context, id string) error
}
