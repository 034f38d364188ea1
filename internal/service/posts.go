package service

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/dto"
	"Dyvine/model"
	"context"
	"strings"
)

const (
	defaultPageCount = 20
	maxPageCount     = 100
)

// GetPost returns one post.
func (s *Service) GetPost(ctx context.Context, postID string) (model.ContentItem, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return model.ContentItem{}, apperr.New(apperr.Validation, "post id is required")
	}
	return s.source.GetPost(ctx, postID)
}

// ListUserPosts returns one page of a user's posts.
func (s *Service) ListUserPosts(ctx context.Context, req dto.ListPostsRequest) (model.Page, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return model.Page{}, apperr.New(apperr.Validation, "user id is required")
	}
	count := req.Count
	if count == 0 {
		count = defaultPageCount
	}
	if count < 1 || count > maxPageCount {
		return model.Page{}, apperr.Newf(apperr.Validation, "count must be between 1 and %d", maxPageCount)
	}
	page, err := s.source.ListPosts(ctx, req.UserID, req.MaxCursor, count)
	if err != nil {
		return model.Page{}, err
	}
	if page.Items == nil {
		page.Items = []model.ContentItem{}
	}
	return page, nil
}
