package handler

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/dto"
	"Dyvine/model"
	"Dyvine/utils"
	"errors"

	"github.com/gin-gonic/gin"
)

// UserStreamAction handles POST /livestreams/users/{id}/stream:download.
func (h *Handler) UserStreamAction(c *gin.Context) {
	if c.Param("action") != "stream:download" {
		unknownRoute(c)
		return
	}
	op, err := h.svc.StartLivestream(c.Request.Context(), c.Param("user_id"))
	h.respondLivestream(c, op, err)
}

// StreamAction handles POST /livestreams/stream:download with the room URL
// in the body or the url query parameter.
func (h *Handler) StreamAction(c *gin.Context) {
	if c.Param("action") != "stream:download" {
		unknownRoute(c)
		return
	}
	var req dto.StreamURLRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.Fail(c, apperr.Wrap(apperr.Validation, "url is required", err))
		return
	}
	op, err := h.svc.StartLivestreamFromURL(c.Request.Context(), req.URL)
	h.respondLivestream(c, op, err)
}

func (h *Handler) respondLivestream(c *gin.Context, op model.Operation, err error) {
	if err != nil {
		if op.ID != "" {
			var ae *apperr.Error
			if errors.As(err, &ae) && ae.Details == nil {
				ae.WithDetails(dto.NewLivestreamResponse(op))
			}
		}
		utils.Fail(c, err)
		return
	}
	utils.Accepted(c, dto.NewLivestreamResponse(op))
}
