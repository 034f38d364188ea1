package utils

import (
	"Dyvine/config"
	"Dyvine/internal/apperr"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handler gin.HandlerFunc, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.Use(mw...)
	r.GET("/x", handler)
	return r
}

func TestFailMapsCodeAndCorrelationID(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		Fail(c, apperr.New(apperr.NotFound, "operation not found").WithDetails(map[string]string{"id": "op"}))
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["code"])
	assert.Equal(t, "operation not found", body["message"])
	assert.Equal(t, "req-1", body["correlation_id"])
	assert.Equal(t, "op", body["details"].(map[string]any)["id"])
}

func TestFailUnclassifiedIsInternal(t *testing.T) {
	r := newEngine(func(c *gin.Context) { Fail(c, errors.New("boom")) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestAuthMiddleware(t *testing.T) {
	prev := config.AppConfig
	t.Cleanup(func() { config.AppConfig = prev })
	ok := func(c *gin.Context) { Success(c, gin.H{"client": c.GetString("client")}) }

	config.AppConfig.JWTSecret = ""
	r := newEngine(ok, AuthMiddleware())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code, "no secret disables auth")

	config.AppConfig.JWTSecret = "s3cret"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := GenerateToken("svc", "archiver", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "archiver")

	expired, err := GenerateToken("svc", "archiver", -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func corsRequest(t *testing.T, allowed []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.Use(CORSMiddleware(allowed))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(method, "/x", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSPreflight(t *testing.T) {
	w := corsRequest(t, nil, http.MethodOptions, "https://app.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), RequestIDHeader)
}

func TestCORSAllowedOrigins(t *testing.T) {
	allowed := []string{"https://app.example/"}

	w := corsRequest(t, allowed, http.MethodOptions, "https://APP.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://APP.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = corsRequest(t, allowed, http.MethodOptions, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = corsRequest(t, allowed, http.MethodGet, "https://evil.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = corsRequest(t, []string{"https://app.example", "*"}, http.MethodGet, "https://other.example")
	assert.Equal(t, "https://other.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = corsRequest(t, allowed, http.MethodGet, "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
