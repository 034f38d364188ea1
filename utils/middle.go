package utils

import (
	"Dyvine/config"
	"Dyvine/internal/apperr"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the correlation id in and out.
	RequestIDHeader  = "X-Request-ID"
	correlationIDKey = "correlation_id"
)

// CorrelationID returns the correlation id of the request, if any.
func CorrelationID(c *gin.Context) string {
	return c.GetString(correlationIDKey)
}

// RequestIDMiddleware reuses the caller's X-Request-ID or mints one, and
// echoes it back.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(correlationIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request through slog.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"correlation_id", CorrelationID(c),
		)
	}
}

// AuthMiddleware verifies the bearer JWT and sets the caller's subject.
// With no JWT secret configured every request passes.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.AppConfig.JWTSecret == "" {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			Fail(c, apperr.New(apperr.AuthExpired, "missing bearer token"))
			return
		}
		claims, err := VerifyToken(tokenParts[1])
		if err != nil {
			Fail(c, apperr.Wrap(apperr.AuthExpired, "invalid bearer token", err))
			return
		}
		c.Set("subject", claims.Subject)
		c.Set("client", claims.Client)
		c.Next()
	}
}
