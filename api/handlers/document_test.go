package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
)

type fakeService struct {
	docs      map[string]*models.Document
	tasks     map[string]*models.IndexTask
	activated []string
	deleted   []string
	flushed   bool
}

func newFakeService() *fakeService {
	return &fakeService{
		docs:  make(map[string]*models.Document),
		tasks: make(map[string]*models.IndexTask),
	}
}

func (f *fakeService) Upload(_ context.Context, reader io.Reader, filename string) (*models.Document, error) {
	io.Copy(io.Discard, reader)
	id := uuid.New().String()
	doc := &models.Document{
		ID:          id,
		StoragePath: fmt.Sprintf("%s_%s", id, filename),
		Filename:    filename,
		CreatedAt:   time.Now().UTC(),
		State:       models.StateUnindexed,
	}
	f.docs[id] = doc
	return doc, nil
}

func (f *fakeService) Activate(_ context.Context, documentID string) (*models.IndexTask, error) {
	if _, ok := f.docs[documentID]; !ok {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, documentID)
	}
	f.activated = append(f.activated, documentID)
	task := &models.IndexTask{
		TaskID:     uuid.New().String(),
		DocumentID: documentID,
		Status:     models.TaskPending,
		CreatedAt:  time.Now().UTC(),
	}
	f.tasks[task.TaskID] = task
	return task, nil
}

func (f *fakeService) TaskStatus(_ context.Context, taskID string) (*models.IndexTask, error) {
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", models.ErrNotFound, taskID)
	}
	return task, nil
}

func (f *fakeService) Document(_ context.Context, documentID string) (*models.Document, error) {
	doc, ok := f.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, documentID)
	}
	return doc, nil
}

func (f *fakeService) List(_ context.Context) ([]models.Document, error) {
	docs := make([]models.Document, 0, len(f.docs))
	for _, d := range f.docs {
		docs = append(docs, *d)
	}
	return docs, nil
}

func (f *fakeService) HandleIndexTask(_ context.Context, _ queue.IndexPayload) error {
	return nil
}

func (f *fakeService) Delete(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	delete(f.docs, documentID)
	return nil
}

func (f *fakeService) Flush(_ context.Context) error {
	f.flushed = true
	f.docs = make(map[string]*models.Document)
	return nil
}

func newTestRouter(svc *fakeService, activateOnUpload bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewDocumentHandler(svc, logger.NewTestLogger(), 0, activateOnUpload)
	r := gin.New()
	docs := r.Group("/api/v1/documents")
	{
		docs.POST("", h.Upload)
		docs.GET("", h.ListDocuments)
		docs.GET("/:id", h.GetDocument)
		docs.POST("/:id/activate", h.Activate)
		docs.DELETE("/:id", h.DeleteDocument)
		docs.DELETE("", h.Flush)
	}
	r.GET("/api/v1/tasks/:taskId", h.GetTaskStatus)
	return r
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestUpload(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc, false)

	body, contentType := multipartUpload(t, "report.pdf", "pdf bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.DocumentID, 36)
	assert.Equal(t, "report.pdf", resp.Filename)
	assert.Equal(t, string(models.StateUnindexed), resp.State)
	assert.Empty(t, resp.TaskID)
	assert.Empty(t, svc.activated)
}

func TestUpload_ActivateOnUpload(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc, true)

	body, contentType := multipartUpload(t, "report.pdf", "pdf bytes")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, string(models.StateQueued), resp.State)
	assert.Equal(t, []string{resp.DocumentID}, svc.activated)
}

func TestUpload_MissingFile(t *testing.T) {
	r := newTestRouter(newFakeService(), false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivate_UnknownDocument(t *testing.T) {
	r := newTestRouter(newFakeService(), false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/nope/activate", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActivate_ThenPollTask(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc, false)

	doc, err := svc.Upload(context.Background(), bytes.NewReader(nil), "a.txt")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+doc.ID+"/activate", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var task TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	assert.Equal(t, doc.ID, task.DocumentID)
	assert.Equal(t, string(models.TaskPending), task.Status)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+task.TaskID, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGetTaskStatus_Unknown(t *testing.T) {
	r := newTestRouter(newFakeService(), false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/ghost", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete_UnknownConverges(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc, false)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/ghost", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ghost"}, svc.deleted)
}

func TestDelete_ThenActivateNotFound(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc, false)

	doc, err := svc.Upload(context.Background(), bytes.NewReader(nil), "a.txt")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+doc.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+doc.ID+"/activate", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFlush(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc, false)

	_, err := svc.Upload(context.Background(), bytes.NewReader(nil), "a.txt")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.flushed)
	assert.Empty(t, svc.docs)
}

func TestListDocuments(t *testing.T) {
	svc := newFakeService()
	r := newTestRouter(svc, false)

	_, err := svc.Upload(context.Background(), bytes.NewReader(nil), "a.txt")
	require.NoError(t, err)
	_, err = svc.Upload(context.Background(), bytes.NewReader(nil), "b.txt")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Documents []models.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Documents, 2)
}
