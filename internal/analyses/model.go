package analyses

import "time"

// Analysis request lifecycle. Transitions only move forward:
// pending -> in_progress -> completed|failed. Terminal states are immutable.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var statusRank = map[string]int{
	StatusPending:    0,
	StatusInProgress: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// transitionAllowed reports whether moving from current to next respects
// the forward-only lifecycle.
func transitionAllowed(current, next string) bool {
	cr, ok := statusRank[current]
	if !ok {
		return false
	}
	nr, ok := statusRank[next]
	if !ok {
		return false
	}
	return nr > cr
}

// AnalysisRequest is one uploaded document and its analysis run.
type AnalysisRequest struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	FileName     string     `json:"file_name"`
	ContentType  string     `json:"content_type"`
	SizeBytes    int64      `json:"size_bytes"`
	StorageKey   string     `json:"-"`
	Query        string     `json:"query"`
	Status       string     `json:"status"`
	Result       string     `json:"result,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	TaskID       string     `json:"task_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
