package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/observability"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", core.NewError(core.ErrValidationFailed, "bad"), http.StatusBadRequest},
		{"not found", core.NewError(core.ErrNotFound, "missing"), http.StatusNotFound},
		{"conflict", core.Wrap(errors.New("version"), core.ErrConflict, "retry"), http.StatusConflict},
		{"publish", core.NewError(core.ErrPublishFailed, "broker"), http.StatusBadGateway},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestRESTAdapter_ErrorResponse(t *testing.T) {
	adapter := NewRESTAdapter(DefaultRESTConfig(), nil, discardLogger())
	adapter.API().GET("/fail", func(c *gin.Context) {
		AbortWithError(c, core.NewError(core.ErrConflict, "seat taken"))
	})
	adapter.API().GET("/panic", func(c *gin.Context) {
		AbortWithError(c, errors.New("database password leaked"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/fail", nil)
	req.Header.Set(observability.CorrelationIDHeader, "corr-1")
	adapter.Engine().ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, core.ErrConflict, body.Code)
	assert.Equal(t, "corr-1", body.CorrelationID)
	assert.Equal(t, "corr-1", w.Header().Get(observability.CorrelationIDHeader))

	w = httptest.NewRecorder()
	adapter.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/panic", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, core.ErrInternal, body.Code)
	assert.NotContains(t, body.Message, "password")
}

func TestRESTAdapter_OperationalRoutes(t *testing.T) {
	health := observability.NewHealthRegistry(time.Second)
	adapter := NewRESTAdapter(DefaultRESTConfig(), health, discardLogger())

	w := httptest.NewRecorder()
	adapter.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	adapter.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRESTAdapter_MetricsDisabled(t *testing.T) {
	config := DefaultRESTConfig()
	config.EnableMetrics = false
	adapter := NewRESTAdapter(config, nil, discardLogger())

	w := httptest.NewRecorder()
	adapter.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
