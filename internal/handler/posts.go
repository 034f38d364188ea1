package handler

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/dto"
	"Dyvine/utils"

	"github.com/gin-gonic/gin"
)

// GetPost returns one post.
func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.svc.GetPost(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, post)
}

// ListUserPosts handles GET /posts/users/{id}/posts.
func (h *Handler) ListUserPosts(c *gin.Context) {
	if c.Param("action") != "posts" {
		unknownRoute(c)
		return
	}
	var req dto.ListPostsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.Fail(c, apperr.Wrap(apperr.Validation, "invalid query", err))
		return
	}
	req.UserID = c.Param("user_id")
	page, err := h.svc.ListUserPosts(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Success(c, page)
}

// UserPostsAction handles POST /posts/users/{id}/posts:download.
func (h *Handler) UserPostsAction(c *gin.Context) {
	if c.Param("action") != "posts:download" {
		unknownRoute(c)
		return
	}
	var req dto.DownloadPostsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.Fail(c, apperr.Wrap(apperr.Validation, "invalid query", err))
		return
	}
	req.UserID = c.Param("user_id")
	op, err := h.svc.DownloadUserPosts(c.Request.Context(), req)
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Accepted(c, dto.NewOperationAccepted(op))
}
