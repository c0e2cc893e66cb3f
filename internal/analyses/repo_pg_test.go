package analyses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	rec := AnalysisRequest{
		ID:          "req-1",
		UserID:      "user-1",
		FileName:    "report.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
		StorageKey:  "abc/report.pdf",
		Query:       "q",
		TaskID:      "task-1",
	}

	mock.ExpectExec("INSERT INTO analysis_requests").
		WithArgs(
			rec.ID,
			rec.UserID,
			rec.FileName,
			rec.ContentType,
			rec.SizeBytes,
			rec.StorageKey,
			rec.Query,
			StatusPending,
			rec.TaskID,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoMarkInProgressGuardsStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	startedAt := time.Now().UTC()

	// Guarded update matches no rows; the record exists in a later state.
	mock.ExpectExec("UPDATE analysis_requests").
		WithArgs("req-1", StatusInProgress, startedAt, StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err = repo.MarkInProgress(context.Background(), "req-1", startedAt)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoMarkInProgressMissingRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	startedAt := time.Now().UTC()

	mock.ExpectExec("UPDATE analysis_requests").
		WithArgs("missing", StatusInProgress, startedAt, StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = repo.MarkInProgress(context.Background(), "missing", startedAt)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoGetByIDScansNullables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "file_name", "content_type", "size_bytes", "storage_key", "query",
		"status", "result", "error_message", "task_id", "created_at", "updated_at", "started_at", "completed_at",
	}).AddRow("req-1", "user-1", "report.pdf", "application/pdf", int64(10), "k", "q",
		StatusPending, nil, nil, "task-1", now, now, nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM analysis_requests WHERE id =").
		WithArgs("req-1").
		WillReturnRows(rows)

	rec, err := repo.GetByID(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Result != "" || rec.ErrorMessage != "" || rec.StartedAt != nil || rec.CompletedAt != nil {
		t.Fatalf("nullable fields mishandled: %+v", rec)
	}
}

func TestPGRepoMarkCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	completedAt := time.Now().UTC()

	mock.ExpectExec("UPDATE analysis_requests").
		WithArgs("req-1", StatusCompleted, "report body", completedAt, StatusPending, StatusInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkCompleted(context.Background(), "req-1", "report body", completedAt); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
