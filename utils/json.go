package utils

import (
	"Dyvine/internal/apperr"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Success writes data as a 200 JSON response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Accepted writes data as a 202 JSON response.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// Fail writes an error JSON response. The status and code come from the
// apperr classification; unclassified errors are internal.
func Fail(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)
	message := err.Error()
	var details any
	var ae *apperr.Error
	if errors.As(err, &ae) {
		message = ae.Message
		details = ae.Details
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "correlation_id", CorrelationID(c), "err", err)
	}
	body := gin.H{
		"code":           code,
		"message":        message,
		"correlation_id": CorrelationID(c),
	}
	if details != nil {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, body)
}
