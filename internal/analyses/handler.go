package analyses

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"findoc-backend/internal/jobstatus"
	"findoc-backend/internal/shared/server/middleware"
	"findoc-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/upload", h.upload)
	rg.GET("/history", h.history)
	rg.GET("/status/:id", h.status)
	rg.GET("/task/:taskId", h.task)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "a file upload is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read upload", nil)
		return
	}
	defer file.Close()

	query := c.PostForm("query")

	rec, err := h.Svc.Upload(c.Request.Context(), userID, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file, query)
	if err != nil {
		if errors.Is(err, ErrNotPDF) {
			respond.Error(c, http.StatusBadRequest, "validation_error", "only PDF files are supported", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to accept upload", nil)
		return
	}

	respond.Accepted(c, gin.H{
		"request_id": rec.ID,
		"task_id":    rec.TaskID,
		"status":     rec.Status,
	})
}

func (h *Handler) status(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "malformed analysis id", nil)
		return
	}

	rec, err := h.Svc.Get(c.Request.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis request not found", nil)
		case errors.Is(err, ErrForbidden):
			respond.Error(c, http.StatusForbidden, "forbidden", "analysis request belongs to another user", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis request", nil)
		}
		return
	}

	respond.OK(c, statusPayload(rec))
}

func (h *Handler) history(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			offset = parsed
		}
	}

	items, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analysis requests", nil)
		return
	}

	resp := make([]gin.H, 0, len(items))
	for _, rec := range items {
		resp = append(resp, gin.H{
			"request_id": rec.ID,
			"file_name":  rec.FileName,
			"status":     rec.Status,
			"created_at": rec.CreatedAt,
		})
	}
	respond.OK(c, resp)
}

func (h *Handler) task(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	taskID := c.Param("taskId")
	if taskID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "task id is required", nil)
		return
	}

	state, err := h.Svc.PollTask(c.Request.Context(), userID, taskID)
	if err != nil {
		switch {
		case errors.Is(err, jobstatus.ErrNotFound), errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "task not found", nil)
		case errors.Is(err, ErrForbidden):
			respond.Error(c, http.StatusForbidden, "forbidden", "task belongs to another user", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch task state", nil)
		}
		return
	}

	respond.OK(c, state)
}

func statusPayload(rec AnalysisRequest) gin.H {
	payload := gin.H{
		"request_id": rec.ID,
		"file_name":  rec.FileName,
		"query":      rec.Query,
		"status":     rec.Status,
		"task_id":    rec.TaskID,
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
	}
	if rec.Status == StatusCompleted {
		payload["result"] = rec.Result
	}
	if rec.Status == StatusFailed {
		payload["error_message"] = rec.ErrorMessage
	}
	if rec.StartedAt != nil {
		payload["started_at"] = rec.StartedAt
	}
	if rec.CompletedAt != nil {
		payload["completed_at"] = rec.CompletedAt
	}
	return payload
}
