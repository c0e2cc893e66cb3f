package analyses

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo persists analysis requests in Postgres. Status transitions are
// guarded in SQL so concurrent workers cannot move a record backwards.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `
id, user_id, file_name, content_type, size_bytes, storage_key, query,
status, result, error_message, task_id, created_at, updated_at, started_at, completed_at`

func (r *PGRepo) Create(ctx context.Context, rec AnalysisRequest) error {
	const query = `
INSERT INTO analysis_requests
  (id, user_id, file_name, content_type, size_bytes, storage_key, query, status, task_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`
	status := rec.Status
	if status == "" {
		status = StatusPending
	}
	_, err := r.DB.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.FileName,
		rec.ContentType,
		rec.SizeBytes,
		rec.StorageKey,
		rec.Query,
		status,
		rec.TaskID,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (AnalysisRequest, error) {
	query := `SELECT ` + selectColumns + ` FROM analysis_requests WHERE id = $1 LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) GetByTaskID(ctx context.Context, taskID string) (AnalysisRequest, error) {
	query := `SELECT ` + selectColumns + ` FROM analysis_requests WHERE task_id = $1 LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, taskID))
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]AnalysisRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `
SELECT ` + selectColumns + `
FROM analysis_requests
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]AnalysisRequest, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *PGRepo) SetTaskID(ctx context.Context, id, taskID string) error {
	const query = `
UPDATE analysis_requests
SET task_id = $2, updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, taskID)
	if err != nil {
		return err
	}
	return requireRow(res, func() error { return ErrNotFound })
}

func (r *PGRepo) MarkInProgress(ctx context.Context, id string, startedAt time.Time) error {
	const query = `
UPDATE analysis_requests
SET status = $2, started_at = $3, updated_at = now()
WHERE id = $1 AND status = $4`
	res, err := r.DB.ExecContext(ctx, query, id, StatusInProgress, startedAt, StatusPending)
	if err != nil {
		return err
	}
	return requireRow(res, r.transitionError(ctx, id))
}

func (r *PGRepo) MarkCompleted(ctx context.Context, id, result string, completedAt time.Time) error {
	const query = `
UPDATE analysis_requests
SET status = $2, result = $3, completed_at = $4, updated_at = now()
WHERE id = $1 AND status IN ($5, $6)`
	res, err := r.DB.ExecContext(ctx, query, id, StatusCompleted, result, completedAt, StatusPending, StatusInProgress)
	if err != nil {
		return err
	}
	return requireRow(res, r.transitionError(ctx, id))
}

func (r *PGRepo) MarkFailed(ctx context.Context, id, errorMessage string, completedAt time.Time) error {
	const query = `
UPDATE analysis_requests
SET status = $2, error_message = $3, completed_at = $4, updated_at = now()
WHERE id = $1 AND status IN ($5, $6)`
	res, err := r.DB.ExecContext(ctx, query, id, StatusFailed, errorMessage, completedAt, StatusPending, StatusInProgress)
	if err != nil {
		return err
	}
	return requireRow(res, r.transitionError(ctx, id))
}

func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM analysis_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, func() error { return ErrNotFound })
}

// transitionError distinguishes a missing record from a guarded update
// that matched the id but not the expected status.
func (r *PGRepo) transitionError(ctx context.Context, id string) func() error {
	return func() error {
		var exists bool
		err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM analysis_requests WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
}

func requireRow(res sql.Result, onMiss func() error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return onMiss()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PGRepo) scanOne(row *sql.Row) (AnalysisRequest, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnalysisRequest{}, ErrNotFound
		}
		return AnalysisRequest{}, err
	}
	return rec, nil
}

func scanRecord(row rowScanner) (AnalysisRequest, error) {
	var rec AnalysisRequest
	var result sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.FileName,
		&rec.ContentType,
		&rec.SizeBytes,
		&rec.StorageKey,
		&rec.Query,
		&rec.Status,
		&result,
		&errorMessage,
		&rec.TaskID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return AnalysisRequest{}, err
	}
	if result.Valid {
		rec.Result = result.String
	}
	if errorMessage.Valid {
		rec.ErrorMessage = errorMessage.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}
