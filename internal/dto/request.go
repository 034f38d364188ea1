package dto

// DownloadContentRequest are the query flags of a user-content download.
type DownloadContentRequest struct {
	UserID       string `form:"-"`
	IncludePosts *bool  `form:"include_posts"`
	IncludeLikes *bool  `form:"include_likes"`
	MaxItems     int    `form:"max_items" binding:"gte=0"`
}

// DownloadPostsRequest are the query flags of a posts download.
type DownloadPostsRequest struct {
	UserID    string `form:"-"`
	MaxCursor string `form:"max_cursor"`
	MaxItems  int    `form:"max_items" binding:"gte=0"`
}

// ListPostsRequest pages through a user's posts.
type ListPostsRequest struct {
	UserID    string `form:"-"`
	MaxCursor string `form:"max_cursor"`
	Count     int    `form:"count"`
}

// ListOperationsRequest filters the operation list.
type ListOperationsRequest struct {
	Status string `form:"status"`
}

// StreamURLRequest is the body of a direct-URL livestream download.
type StreamURLRequest struct {
	URL string `json:"url" form:"url" binding:"required"`
}
