package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newOriginRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(OriginFilter(origins, zap.NewNop()))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return router
}

func doRequest(router *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOriginFilterAllowsListedOrigin(t *testing.T) {
	router := newOriginRouter([]string{"https://class.example"})

	w := doRequest(router, http.MethodGet, "https://class.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://class.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginFilterRejectsUnknownOrigin(t *testing.T) {
	router := newOriginRouter([]string{"https://class.example"})

	w := doRequest(router, http.MethodGet, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginFilterPassesOriginlessRequests(t *testing.T) {
	router := newOriginRouter([]string{"https://class.example"})

	w := doRequest(router, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOriginFilterAnswersPreflight(t *testing.T) {
	router := newOriginRouter([]string{"https://class.example"})

	w := doRequest(router, http.MethodOptions, "https://class.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}
