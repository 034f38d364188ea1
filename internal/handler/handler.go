// Package handler binds HTTP requests to the service layer.
package handler

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/dto"
	"Dyvine/internal/service"
	"Dyvine/utils"
	"strings"

	"github.com/gin-gonic/gin"
)

// Handler serves the API routes.
type Handler struct {
	svc *service.Service
}

// New builds a Handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// splitAction splits a "name:action" path segment.
func splitAction(segment string) (string, string) {
	name, action, _ := strings.Cut(segment, ":")
	return name, action
}

func unknownRoute(c *gin.Context) {
	utils.Fail(c, apperr.Newf(apperr.NotFound, "no route for %s %s", c.Request.Method, c.Request.URL.Path))
}

// GetOperation returns the operation snapshot of resource.
func (h *Handler) GetOperation(resource service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		op, err := h.svc.GetOperation(resource, c.Param("operation_id"))
		if err != nil {
			utils.Fail(c, err)
			return
		}
		utils.Success(c, op)
	}
}

// ListOperations lists the live operations of resource.
func (h *Handler) ListOperations(resource service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.ListOperationsRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			utils.Fail(c, apperr.Wrap(apperr.Validation, "invalid query", err))
			return
		}
		ops, err := h.svc.ListOperations(resource, req.Status)
		if err != nil {
			utils.Fail(c, err)
			return
		}
		utils.Success(c, dto.OperationList{Operations: ops, Total: len(ops)})
	}
}

// OperationAction handles POST /{resource}/operations/{id}:cancel.
func (h *Handler) OperationAction(resource service.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, action := splitAction(c.Param("operation_id"))
		if action != "cancel" {
			unknownRoute(c)
			return
		}
		op, err := h.svc.CancelOperation(resource, id)
		if err != nil {
			utils.Fail(c, err)
			return
		}
		utils.Accepted(c, op)
	}
}
