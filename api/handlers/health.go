package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docuchat/docuchat/pkg/logger"
)

// Pinger is a reachability probe for one backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

const probeTimeout = 3 * time.Second

type HealthHandler struct {
	probes map[string]Pinger
	logger logger.Logger
}

func NewHealthHandler(probes map[string]Pinger, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		probes: probes,
		logger: log,
	}
}

// Check probes every dependency. Any failing probe degrades the overall
// status and the reply becomes 503.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.probes))
	for name, probe := range h.probes {
		if err := probe.Ping(ctx); err != nil {
			h.logger.Warn("Dependency probe failed",
				logger.String("dependency", name),
				logger.Error(err),
			)
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
	})
}
