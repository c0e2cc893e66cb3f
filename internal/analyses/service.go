package analyses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"findoc-backend/internal/extract"
	"findoc-backend/internal/jobstatus"
	"findoc-backend/internal/llm"
	"findoc-backend/internal/queue"
	"findoc-backend/internal/search"
	"findoc-backend/internal/shared/metrics"
	"findoc-backend/internal/shared/storage/object"
	"findoc-backend/internal/shared/telemetry"
	"findoc-backend/internal/workflow"
)

const mimePDF = "application/pdf"

// Service contains business logic for analysis requests. The API process
// uses Upload/Get/List; the worker (or the in-process runner) uses Process.
type Service struct {
	Repo       Repo
	Store      object.ObjectStore
	Dispatcher *queue.Dispatcher
	Status     jobstatus.Store
	LLM        llm.Client
	Search     search.Searcher

	// PipelineFn overrides the staged pipeline; tests use it to avoid
	// running the full document workflow.
	PipelineFn func(ctx context.Context, rec AnalysisRequest) (string, error)
}

// Upload stores the PDF, creates the pending record, and enqueues the
// analysis job. Failures after the blob is written clean it up again.
func (s *Service) Upload(ctx context.Context, userID, fileName, contentType string, file io.Reader, query string) (AnalysisRequest, error) {
	if userID == "" {
		return AnalysisRequest{}, errors.New("userID is required")
	}
	if !isPDF(contentType) {
		return AnalysisRequest{}, ErrNotPDF
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, userID, fileName, file)
	if err != nil {
		return AnalysisRequest{}, fmt.Errorf("store upload: %w", err)
	}

	rec := AnalysisRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		FileName:    fileName,
		ContentType: mimeType,
		SizeBytes:   size,
		StorageKey:  storageKey,
		Query:       strings.TrimSpace(query),
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.Repo.Create(ctx, rec); err != nil {
		s.releaseBlob(rec.ID, storageKey)
		return AnalysisRequest{}, fmt.Errorf("create analysis request: %w", err)
	}

	taskID, err := s.Dispatcher.Submit(ctx, rec.ID, rec.StorageKey, rec.Query)
	if err != nil {
		// Compensate: the record must not dangle without a job behind it.
		if delErr := s.Repo.Delete(ctx, rec.ID); delErr != nil {
			telemetry.Error("analysis.compensate_delete_failed", map[string]any{
				"request_id": rec.ID,
				"error":      delErr.Error(),
			})
		}
		s.releaseBlob(rec.ID, storageKey)
		return AnalysisRequest{}, fmt.Errorf("enqueue analysis: %w", err)
	}

	rec.TaskID = taskID
	if err := s.Repo.SetTaskID(ctx, rec.ID, taskID); err != nil {
		telemetry.Error("analysis.set_task_id_failed", map[string]any{
			"request_id": rec.ID,
			"task_id":    taskID,
			"error":      err.Error(),
		})
	}

	telemetry.Info("analysis.accepted", map[string]any{
		"request_id": rec.ID,
		"user_id":    userID,
		"task_id":    taskID,
		"file_name":  fileName,
		"size_bytes": size,
	})
	return rec, nil
}

// Get returns a request by ID, enforcing ownership.
func (s *Service) Get(ctx context.Context, userID, id string) (AnalysisRequest, error) {
	rec, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return AnalysisRequest{}, err
	}
	if rec.UserID != userID {
		return AnalysisRequest{}, ErrForbidden
	}
	return rec, nil
}

// List returns the user's requests, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]AnalysisRequest, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// PollTask returns the live task state for a task ID. When the state
// store has expired the entry, the durable record is consulted instead.
func (s *Service) PollTask(ctx context.Context, userID, taskID string) (jobstatus.TaskState, error) {
	state, err := s.Status.Get(ctx, taskID)
	if err == nil {
		// Ownership comes from the durable record. A state entry with no
		// record behind it (or an unreadable one) is withheld entirely.
		rec, recErr := s.Repo.GetByTaskID(ctx, taskID)
		if recErr != nil {
			if errors.Is(recErr, ErrNotFound) {
				return jobstatus.TaskState{}, jobstatus.ErrNotFound
			}
			return jobstatus.TaskState{}, recErr
		}
		if rec.UserID != userID {
			return jobstatus.TaskState{}, ErrForbidden
		}
		return state, nil
	}
	if !errors.Is(err, jobstatus.ErrNotFound) {
		return jobstatus.TaskState{}, err
	}

	rec, err := s.Repo.GetByTaskID(ctx, taskID)
	if err != nil {
		return jobstatus.TaskState{}, err
	}
	if rec.UserID != userID {
		return jobstatus.TaskState{}, ErrForbidden
	}
	return taskStateFromRecord(rec), nil
}

// Process runs the analysis pipeline for one queued job. It is the entry
// point for both the broker worker and the in-process runner. A non-nil
// return signals an infrastructure failure the caller may retry; pipeline
// failures are recorded on the request and return nil.
func (s *Service) Process(ctx context.Context, requestID, taskID string) error {
	startedAt := time.Now().UTC()

	if err := s.Repo.MarkInProgress(ctx, requestID, startedAt); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Redelivered job for an already-settled request. Ack and move on.
			telemetry.Info("analysis.skip_settled", map[string]any{
				"request_id": requestID,
				"task_id":    taskID,
			})
			return nil
		}
		return fmt.Errorf("set in_progress: %w", err)
	}

	rec, err := s.Repo.GetByID(ctx, requestID)
	if err != nil {
		s.fail(ctx, requestID, taskID, "", fmt.Errorf("analysis lookup: %w", err), startedAt)
		return nil
	}
	if taskID == "" {
		taskID = rec.TaskID
	}

	metrics.AnalysisStarted()
	s.setTaskState(taskID, requestID, jobstatus.StateStarted, "")
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestID,
		"user_id":           rec.UserID,
		"task_id":           taskID,
		"status":            StatusInProgress,
		"status_transition": "pending->in_progress",
	})

	report, err := s.runPipeline(ctx, rec)
	if err != nil {
		s.fail(ctx, requestID, taskID, rec.StorageKey, err, startedAt)
		return nil
	}

	completedAt := time.Now().UTC()
	if err := s.Repo.MarkCompleted(ctx, requestID, report, completedAt); err != nil {
		s.fail(ctx, requestID, taskID, rec.StorageKey, fmt.Errorf("set analysis result failed: %w", err), startedAt)
		return nil
	}
	metrics.AnalysisCompleted(completedAt.Sub(startedAt))
	s.setTaskState(taskID, requestID, jobstatus.StateSuccess, "")
	s.releaseBlob(requestID, rec.StorageKey)
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestID,
		"user_id":           rec.UserID,
		"task_id":           taskID,
		"status":            StatusCompleted,
		"status_transition": "in_progress->completed",
		"duration_ms":       completedAt.Sub(startedAt).Milliseconds(),
	})
	return nil
}

func (s *Service) runPipeline(ctx context.Context, rec AnalysisRequest) (string, error) {
	if s.PipelineFn != nil {
		return s.PipelineFn(ctx, rec)
	}
	if s.LLM == nil {
		return "", errors.New("missing llm client")
	}

	tooling := workflow.Tooling{
		ReadDocument: func(ctx context.Context) (string, error) {
			return extract.Text(ctx, s.Store, rec.StorageKey)
		},
	}
	if s.Search != nil {
		tooling.WebSearch = func(ctx context.Context, query string) (string, error) {
			results, err := s.Search.Search(ctx, query)
			if err != nil {
				return "", err
			}
			return search.FormatResults(results), nil
		}
	}

	engine, err := workflow.NewEngine(s.LLM, tooling)
	if err != nil {
		return "", err
	}
	return engine.Run(ctx, workflow.Input{
		RequestID: rec.ID,
		FileName:  rec.FileName,
		Query:     rec.Query,
		Progress: func(stage string) {
			s.setTaskState(rec.TaskID, rec.ID, jobstatus.StateStarted, "stage: "+stage)
		},
	})
}

// fail records a terminal failure. The repo write uses a fresh context so
// a canceled pipeline context cannot block the status update, and the
// blob is released regardless of why the run failed.
func (s *Service) fail(ctx context.Context, requestID, taskID, storageKey string, cause error, startedAt time.Time) {
	msg := sanitizeError(cause)
	completedAt := time.Now().UTC()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Repo.MarkFailed(writeCtx, requestID, msg, completedAt); err != nil {
		telemetry.Error("analysis.fail_update_failed", map[string]any{
			"request_id": requestID,
			"error":      err.Error(),
			"cause":      msg,
		})
	}

	metrics.AnalysisFailed(completedAt.Sub(startedAt))
	s.setTaskState(taskID, requestID, jobstatus.StateFailure, msg)
	if storageKey != "" {
		s.releaseBlob(requestID, storageKey)
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        requestID,
		"task_id":           taskID,
		"status":            StatusFailed,
		"status_transition": "in_progress->failed",
		"error":             msg,
		"duration_ms":       completedAt.Sub(startedAt).Milliseconds(),
	})
}

// releaseBlob deletes the uploaded object. Runs on its own context so it
// survives request/pipeline cancellation; failures are logged, not fatal.
func (s *Service) releaseBlob(requestID, storageKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Store.Delete(ctx, storageKey); err != nil {
		telemetry.Warn("analysis.blob_release_failed", map[string]any{
			"request_id":  requestID,
			"storage_key": storageKey,
			"error":       err.Error(),
		})
	}
}

func (s *Service) setTaskState(taskID, requestID, state, detail string) {
	if s.Status == nil || taskID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Status.Set(ctx, jobstatus.TaskState{
		TaskID:    taskID,
		RequestID: requestID,
		State:     state,
		Detail:    detail,
	}); err != nil {
		telemetry.Warn("analysis.task_state_failed", map[string]any{
			"request_id": requestID,
			"task_id":    taskID,
			"state":      state,
			"error":      err.Error(),
		})
	}
}

func taskStateFromRecord(rec AnalysisRequest) jobstatus.TaskState {
	state := jobstatus.TaskState{
		TaskID:    rec.TaskID,
		RequestID: rec.ID,
		UpdatedAt: rec.UpdatedAt,
	}
	switch rec.Status {
	case StatusPending:
		state.State = jobstatus.StatePending
	case StatusInProgress:
		state.State = jobstatus.StateStarted
	case StatusCompleted:
		state.State = jobstatus.StateSuccess
	case StatusFailed:
		state.State = jobstatus.StateFailure
		state.Detail = rec.ErrorMessage
	}
	return state
}

// isPDF requires the declared content type to be application/pdf. The
// file name is deliberately not consulted: a .pdf extension on another
// declared type must not get a document past the gate.
func isPDF(contentType string) bool {
	return strings.EqualFold(strings.TrimSpace(strings.Split(contentType, ";")[0]), mimePDF)
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
