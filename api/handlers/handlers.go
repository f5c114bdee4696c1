package handlers

import (
	"github.com/docuchat/docuchat/internal/service/chat"
	"github.com/docuchat/docuchat/internal/service/document"
	"github.com/docuchat/docuchat/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
	Chat     *ChatHandler
	Health   *HealthHandler
}

func NewHandlers(
	documentService document.Service,
	engine *chat.Engine,
	probes map[string]Pinger,
	log logger.Logger,
	maxUploadSize int64,
	activateOnUpload bool,
) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, log, maxUploadSize, activateOnUpload),
		Chat:     NewChatHandler(engine, log),
		Health:   NewHealthHandler(probes, log),
	}
}
