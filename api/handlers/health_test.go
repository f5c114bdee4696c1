package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(_ context.Context) error { return s.err }

func newHealthRouter(probes map[string]Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(probes, logger.NewTestLogger())
	r := gin.New()
	r.GET("/api/v1/health", h.Check)
	return r
}

func TestHealth_AllUp(t *testing.T) {
	r := newHealthRouter(map[string]Pinger{
		"redis":  stubPinger{},
		"qdrant": stubPinger{},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["redis"])
	assert.Equal(t, "ok", resp.Dependencies["qdrant"])
}

func TestHealth_DependencyDown(t *testing.T) {
	r := newHealthRouter(map[string]Pinger{
		"redis":  stubPinger{},
		"qdrant": stubPinger{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["redis"])
	assert.Contains(t, resp.Dependencies["qdrant"], "connection refused")
}
