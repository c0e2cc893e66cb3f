package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"findoc-backend/internal/jobstatus"
	"findoc-backend/internal/queue"
	"findoc-backend/internal/shared/auth"
	"findoc-backend/internal/shared/server/middleware"
)

func setupAnalysisRouter(t *testing.T) (*gin.Engine, *Service, *auth.Signer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := auth.NewSigner("test-secret", "HS256", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	status := jobstatus.NewMemoryStore()
	svc := &Service{
		Repo:   NewMemoryRepo(),
		Store:  newFakeStore(),
		Status: status,
		PipelineFn: func(ctx context.Context, rec AnalysisRequest) (string, error) {
			return "## Executive Summary\nok", nil
		},
	}
	svc.Dispatcher = queue.NewDispatcher(nil, func(ctx context.Context, msg queue.Message) {}, status, time.Minute)

	r := gin.New()
	group := r.Group("/api/v1/analysis")
	group.Use(middleware.Auth(signer))
	NewHandler(svc).RegisterRoutes(group)
	return r, svc, signer
}

func bearerFor(t *testing.T, signer *auth.Signer, userID string) string {
	t.Helper()
	token, err := signer.Sign(userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return "Bearer " + token
}

func multipartFile(t *testing.T, fileName, fileType, query string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", fileType)
	fw, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := fw.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if query != "" {
		if err := mw.WriteField("query", query); err != nil {
			t.Fatalf("write query field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadEndpointAccepted(t *testing.T) {
	router, svc, signer := setupAnalysisRouter(t)

	body, contentType := multipartFile(t, "report.pdf", "application/pdf", "what are the risks")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerFor(t, signer, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", resp.Code, resp.Body.String())
	}

	var accepted struct {
		RequestID string `json:"request_id"`
		TaskID    string `json:"task_id"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accepted.RequestID == "" || accepted.TaskID == "" {
		t.Fatalf("expected identifiers, got %+v", accepted)
	}
	if accepted.Status != StatusPending {
		t.Fatalf("expected pending, got %s", accepted.Status)
	}

	rec, err := svc.Repo.GetByID(context.Background(), accepted.RequestID)
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.Query != "what are the risks" {
		t.Fatalf("query not stored: %q", rec.Query)
	}
}

func TestUploadEndpointRejectsNonPDF(t *testing.T) {
	router, svc, signer := setupAnalysisRouter(t)

	body, contentType := multipartFile(t, "notes.txt", "text/plain", "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerFor(t, signer, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if items, _ := svc.Repo.ListByUser(context.Background(), "user-1", 10, 0); len(items) != 0 {
		t.Fatalf("rejected upload must not create a record")
	}
}

func TestUploadEndpointRejectsMismatchedContentType(t *testing.T) {
	router, svc, signer := setupAnalysisRouter(t)

	// The declared part type decides; a .pdf name does not.
	body, contentType := multipartFile(t, "report.pdf", "text/plain", "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerFor(t, signer, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", resp.Code, resp.Body.String())
	}
	if items, _ := svc.Repo.ListByUser(context.Background(), "user-1", 10, 0); len(items) != 0 {
		t.Fatalf("rejected upload must not create a record")
	}
}

func TestUploadEndpointRequiresAuth(t *testing.T) {
	router, _, _ := setupAnalysisRouter(t)

	body, contentType := multipartFile(t, "report.pdf", "application/pdf", "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	router, svc, signer := setupAnalysisRouter(t)

	rec, err := svc.Upload(context.Background(), "user-1", "report.pdf", "application/pdf", strings.NewReader("%PDF-1.4"), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := svc.Process(context.Background(), rec.ID, rec.TaskID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/status/"+rec.ID, nil)
	req.Header.Set("Authorization", bearerFor(t, signer, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	var payload struct {
		Status string `json:"status"`
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", payload.Status)
	}
	if !strings.Contains(payload.Result, "## Executive Summary") {
		t.Fatalf("result missing report: %q", payload.Result)
	}
}

func TestStatusEndpointMalformedID(t *testing.T) {
	router, _, signer := setupAnalysisRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/status/not-a-uuid", nil)
	req.Header.Set("Authorization", bearerFor(t, signer, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", resp.Code)
	}
}

func TestStatusEndpointNotFound(t *testing.T) {
	router, _, signer := setupAnalysisRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/status/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", bearerFor(t, signer, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestStatusEndpointForbiddenForOtherUser(t *testing.T) {
	router, svc, signer := setupAnalysisRouter(t)

	rec, err := svc.Upload(context.Background(), "user-1", "report.pdf", "application/pdf", strings.NewReader("%PDF-1.4"), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/status/"+rec.ID, nil)
	req.Header.Set("Authorization", bearerFor(t, signer, "user-2"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestHistoryEndpointScopedToUser(t *testing.T) {
	router, svc, signer := setupAnalysisRouter(t)

	for _, user := range []string{"user-1", "user-1", "user-2"} {
		if _, err := svc.Upload(context.Background(), user, "report.pdf", "application/pdf", strings.NewReader("%PDF-1.4"), ""); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/history", nil)
	req.Header.Set("Authorization", bearerFor(t, signer, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items for user-1, got %d", len(items))
	}
}

func TestTaskEndpoint(t *testing.T) {
	router, svc, signer := setupAnalysisRouter(t)

	rec, err := svc.Upload(context.Background(), "user-1", "report.pdf", "application/pdf", strings.NewReader("%PDF-1.4"), "")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/task/"+rec.TaskID, nil)
	req.Header.Set("Authorization", bearerFor(t, signer, "user-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	var state struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.State != jobstatus.StatePending {
		t.Fatalf("expected pending, got %s", state.State)
	}

	missing := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/task/"+uuid.NewString(), nil)
	missing.Header.Set("Authorization", bearerFor(t, signer, "user-1"))
	missingResp := httptest.NewRecorder()
	router.ServeHTTP(missingResp, missing)
	if missingResp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", missingResp.Code)
	}
}
