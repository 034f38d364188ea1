// Package source is the boundary to the video platform. Everything behind the
// Source interface is treated as an opaque capability.
package source

import (
	"Dyvine/model"
	"context"
)

// Feed selects which paged listing of a user to walk.
type Feed string

const (
	FeedPosts Feed = "posts"
	FeedLikes Feed = "likes"
)

// Source exposes the platform operations the service depends on.
type Source interface {
	GetUser(ctx context.Context, userID string) (model.UserProfile, error)
	ListPosts(ctx context.Context, userID, cursor string, count int) (model.Page, error)
	ListLikes(ctx context.Context, userID, cursor string, count int) (model.Page, error)
	GetPost(ctx context.Context, postID string) (model.ContentItem, error)
	GetLiveRoom(ctx context.Context, userID string) (model.LiveRoom, error)
}

// List dispatches to the paged listing of the given feed.
func List(ctx context.Context, src Source, feed Feed, userID, cursor string, count int) (model.Page, error) {
	if feed == FeedLikes {
		return src.ListLikes(ctx, userID, cursor, count)
	}
	return src.ListPosts(ctx, userID, cursor, count)
}
