package model

// UserProfile is the public profile of a platform user.
type UserProfile struct {
	UserID         string `json:"user_id"`
	Nickname       string `json:"nickname"`
	AvatarURL      string `json:"avatar_url"`
	Signature      string `json:"signature"`
	FollowingCount int64  `json:"following_count"`
	FollowerCount  int64  `json:"follower_count"`
	TotalFavorited int64  `json:"total_favorited"`
	PostCount      int64  `json:"post_count"`
	IsLiving       bool   `json:"is_living"`
	RoomID         string `json:"room_id,omitempty"`
}
