package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/api/handlers"
	"github.com/docuchat/docuchat/api/middleware"
)

// SetupRoutes wires all endpoints onto the engine.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	v1.GET("/health", h.Health.Check)

	docs := v1.Group("/documents")
	{
		docs.POST("", h.Document.Upload)
		docs.GET("", h.Document.ListDocuments)
		docs.GET("/:id", h.Document.GetDocument)
		docs.POST("/:id/activate", h.Document.Activate)
		docs.DELETE("/:id", h.Document.DeleteDocument)
		docs.DELETE("", h.Document.Flush)
	}

	v1.GET("/tasks/:taskId", h.Document.GetTaskStatus)

	chat := v1.Group("/chat")
	{
		chat.GET("/completions", h.Chat.Completions)
		chat.GET("/history/:sessionId", h.Chat.History)
	}
}
