package service

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/dto"
	"Dyvine/internal/enumerate"
	"Dyvine/internal/source"
	"Dyvine/model"
	"context"
	"strings"
)

// DownloadUserContent creates a user-content operation and schedules it.
// The posts feed is included unless disabled; the likes feed only on request.
func (s *Service) DownloadUserContent(ctx context.Context, req dto.DownloadContentRequest) (model.Operation, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return model.Operation{}, apperr.New(apperr.Validation, "user id is required")
	}
	if req.MaxItems < 0 {
		return model.Operation{}, apperr.New(apperr.Validation, "max_items must be positive")
	}
	includePosts := req.IncludePosts == nil || *req.IncludePosts
	includeLikes := req.IncludeLikes != nil && *req.IncludeLikes
	var feeds []source.Feed
	if includePosts {
		feeds = append(feeds, source.FeedPosts)
	}
	if includeLikes {
		feeds = append(feeds, source.FeedLikes)
	}
	if len(feeds) == 0 {
		return model.Operation{}, apperr.New(apperr.Validation, "at least one of include_posts and include_likes must be true")
	}

	enumReq := enumerate.Request{UserID: userID, Feeds: feeds, MaxItems: req.MaxItems}
	op := s.registry.Create(ctx, model.KindUserContent, userID)
	s.logger.Info("user content download accepted", "operation_id", op.ID, "user_id", userID,
		"include_posts", includePosts, "include_likes", includeLikes, "max_items", req.MaxItems)
	err := s.submit(op, true, func(ctx context.Context) error {
		expected, err := s.expectedItems(ctx, enumReq)
		if err != nil {
			return err
		}
		return s.downloader.Download(ctx, op.ID, enumReq, expected)
	})
	if err != nil {
		return model.Operation{}, err
	}
	return op, nil
}

// DownloadUserPosts creates a posts operation starting at max_cursor and
// schedules it.
func (s *Service) DownloadUserPosts(ctx context.Context, req dto.DownloadPostsRequest) (model.Operation, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return model.Operation{}, apperr.New(apperr.Validation, "user id is required")
	}
	if req.MaxItems < 0 {
		return model.Operation{}, apperr.New(apperr.Validation, "max_items must be positive")
	}
	cursor := strings.TrimSpace(req.MaxCursor)
	if cursor == "0" {
		cursor = ""
	}

	enumReq := enumerate.Request{
		UserID:      userID,
		Feeds:       []source.Feed{source.FeedPosts},
		StartCursor: cursor,
		MaxItems:    req.MaxItems,
	}
	op := s.registry.Create(ctx, model.KindPosts, userID)
	s.logger.Info("posts download accepted", "operation_id", op.ID, "user_id", userID, "max_cursor", cursor)
	err := s.submit(op, true, func(ctx context.Context) error {
		expected, err := s.expectedItems(ctx, enumReq)
		if err != nil {
			return err
		}
		return s.downloader.Download(ctx, op.ID, enumReq, expected)
	})
	if err != nil {
		return model.Operation{}, err
	}
	return op, nil
}

// expectedItems estimates the batch size for progress reporting. The user's
// post count only describes a posts walk from the beginning; anything else
// is unknown. An unknown user fails the job here.
func (s *Service) expectedItems(ctx context.Context, req enumerate.Request) (int, error) {
	profile, err := s.GetUserProfile(ctx, req.UserID)
	if err != nil {
		return 0, err
	}
	if req.StartCursor != "" || len(req.Feeds) != 1 || req.Feeds[0] != source.FeedPosts {
		return 0, nil
	}
	return int(profile.PostCount), nil
}
