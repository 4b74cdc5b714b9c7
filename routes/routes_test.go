package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"kuraos/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterAnswersPanicsWithErrorBody(t *testing.T) {
	r := NewRouter(zap.NewNop(), 600)
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, "InternalError", resp.Error)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCorsConfig(t *testing.T) {
	all := corsConfig("*")
	assert.True(t, all.AllowAllOrigins)
	assert.False(t, all.AllowCredentials)

	listed := corsConfig(" https://a.example.com, https://b.example.com ,")
	assert.False(t, listed.AllowAllOrigins)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, listed.AllowOrigins)
	assert.True(t, listed.AllowCredentials)
}
