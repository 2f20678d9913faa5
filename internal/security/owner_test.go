package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestOwnerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/users/:user_id", OwnerMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/0B0C9C36-7A2D-4A6E-9C1B-6C1D2E3F4A5B", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0b0c9c36-7a2d-4a6e-9c1b-6c1d2e3f4a5b", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/alice", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"error":"user_id must be a UUID"}`, w.Body.String())
}
