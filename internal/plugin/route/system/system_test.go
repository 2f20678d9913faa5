package system_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/voice-engine-studio/memory-service/internal/plugin/route/system"
	registryroute "github.com/voice-engine-studio/memory-service/internal/registry/route"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	for _, loader := range registryroute.MainRouteLoaders() {
		require.NoError(t, loader(r))
	}
	for _, loader := range registryroute.ManagementRouteLoaders() {
		require.NoError(t, loader(r))
	}
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRootInfo(t *testing.T) {
	r := setupRouter(t)
	w := get(r, "/")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"message":"Voice Engine Studio API","version":"`+system.Version+`"}`, w.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	r := setupRouter(t)
	require.JSONEq(t, `{"status":"healthy"}`, get(r, "/health").Body.String())

	system.MarkReady()
	w := get(r, "/ready")
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusOK, get(r, "/metrics").Code)
}
