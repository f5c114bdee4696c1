package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/service/document"
	"github.com/docuchat/docuchat/pkg/logger"
)

type DocumentHandler struct {
	service          document.Service
	logger           logger.Logger
	maxUploadSize    int64
	activateOnUpload bool
}

// UploadResponse describes a stored document.
type UploadResponse struct {
	DocumentID string `json:"documentId"`
	Filename   string `json:"filename"`
	FileSize   int64  `json:"fileSize"`
	State      string `json:"state"`
	TaskID     string `json:"taskId,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// TaskResponse describes an indexing task.
type TaskResponse struct {
	TaskID     string `json:"taskId"`
	DocumentID string `json:"documentId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewDocumentHandler(service document.Service, log logger.Logger, maxUploadSize int64, activateOnUpload bool) *DocumentHandler {
	return &DocumentHandler{
		service:          service,
		logger:           log,
		maxUploadSize:    maxUploadSize,
		activateOnUpload: activateOnUpload,
	}
}

// Upload stores a document and returns its generated id.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}
	defer file.Close()

	if h.maxUploadSize > 0 && header.Size > h.maxUploadSize {
		h.handleError(c, http.StatusRequestEntityTooLarge, "File too large", nil)
		return
	}

	doc, err := h.service.Upload(c.Request.Context(), file, header.Filename)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to store document", err)
		return
	}

	resp := UploadResponse{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		FileSize:   header.Size,
		State:      string(doc.State),
		CreatedAt:  doc.CreatedAt.Format(time.RFC3339),
	}

	if h.activateOnUpload {
		task, err := h.service.Activate(c.Request.Context(), doc.ID)
		if err != nil {
			h.handleError(c, statusFor(err), "Failed to start indexing", err)
			return
		}
		resp.State = string(models.StateQueued)
		resp.TaskID = task.TaskID
	}

	c.JSON(http.StatusOK, resp)
}

// Activate enqueues indexing for an uploaded document.
func (h *DocumentHandler) Activate(c *gin.Context) {
	documentID := c.Param("id")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	task, err := h.service.Activate(c.Request.Context(), documentID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to activate document", err)
		return
	}

	c.JSON(http.StatusOK, taskResponse(task))
}

// GetTaskStatus reports the state of an indexing task.
func (h *DocumentHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("taskId")
	if taskID == "" {
		h.handleError(c, http.StatusBadRequest, "Task ID is required", nil)
		return
	}

	task, err := h.service.TaskStatus(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get task status", err)
		return
	}

	c.JSON(http.StatusOK, taskResponse(task))
}

// GetDocument returns one document with its indexing state.
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	documentID := c.Param("id")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	doc, err := h.service.Document(c.Request.Context(), documentID)
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to get document", err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// ListDocuments returns every known document.
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.service.List(c.Request.Context())
	if err != nil {
		h.handleError(c, statusFor(err), "Failed to list documents", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// DeleteDocument tears down one document. Deleting an unknown id succeeds.
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	documentID := c.Param("id")
	if documentID == "" {
		h.handleError(c, http.StatusBadRequest, "Document ID is required", nil)
		return
	}

	if err := h.service.Delete(c.Request.Context(), documentID); err != nil {
		h.handleError(c, statusFor(err), "Failed to delete document", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Document deleted",
		"documentId": documentID,
	})
}

// Flush tears down every document, chain and chat session.
func (h *DocumentHandler) Flush(c *gin.Context) {
	if err := h.service.Flush(c.Request.Context()); err != nil {
		h.handleError(c, statusFor(err), "Failed to flush", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All documents and sessions flushed"})
}

func taskResponse(task *models.IndexTask) TaskResponse {
	resp := TaskResponse{
		TaskID:     task.TaskID,
		DocumentID: task.DocumentID,
		Status:     string(task.Status),
		Error:      task.Error,
	}
	if !task.CreatedAt.IsZero() {
		resp.CreatedAt = task.CreatedAt.Format(time.RFC3339)
	}
	if !task.FinishedAt.IsZero() {
		resp.FinishedAt = task.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDocumentExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, models.ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	h.logger.Error(message,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(status, response)
}
