package handler

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/dto"
	"Dyvine/utils"

	"github.com/gin-gonic/gin"
)

// GetUser returns a user profile.
func (h *Handler) GetUser(c *gin.Context) {
	profile, err := h.svc.GetUserProfile(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, profile)
}

// UserAction handles POST /users/{id}/content:download.
func (h *Handler) UserAction(c *gin.Context) {
	if c.Param("action") != "content:download" {
		unknownRoute(c)
		return
	}
	var req dto.DownloadContentRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.Fail(c, apperr.Wrap(apperr.Validation, "invalid query", err))
		return
	}
	req.UserID = c.Param("user_id")
	op, err := h.svc.DownloadUserContent(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Accepted(c, dto.NewOperationAccepted(op))
}
