package model

// Capture stages of a livestream operation, stored in Operation.Stage.
const (
	StagePending    = "pending"
	StageConnecting = "connecting"
	StageCapturing  = "capturing"
	StageMerging    = "merging"
	StageSuccess    = "success"
	StageFailed     = "failed"
)

// LiveStatusLive is the room status the platform reports while a stream is on air.
const LiveStatusLive = 2

// LiveRoom describes a user's live room and its pull urls.
type LiveRoom struct {
	RoomID     string            `json:"room_id"`
	UserID     string            `json:"user_id"`
	Nickname   string            `json:"nickname"`
	Title      string            `json:"title"`
	LiveStatus int               `json:"live_status"`
	UserCount  int64             `json:"user_count"`
	FLVPullURL map[string]string `json:"flv_pull_url"`
	HLSPullURL map[string]string `json:"hls_pull_url_map"`
}

// IsLive reports whether the room is currently broadcasting.
func (r LiveRoom) IsLive() bool {
	return r.LiveStatus == LiveStatusLive
}

// qualities in preference order
var pullQualities = []string{"FULL_HD1", "HD1", "SD1", "SD2"}

// BestHLS returns the highest quality HLS pull url, if any.
func (r LiveRoom) BestHLS() string {
	return pickQuality(r.HLSPullURL)
}

// BestFLV returns the highest quality FLV pull url, if any.
func (r LiveRoom) BestFLV() string {
	return pickQuality(r.FLVPullURL)
}

func pickQuality(urls map[string]string) string {
	for _, q := range pullQualities {
		if u := urls[q]; u != "" {
			return u
		}
	}
	best := ""
	for q, u := range urls {
		if u == "" {
			continue
		}
		if best == "" || q < best {
			best = q
		}
	}
	if best == "" {
		return ""
	}
	return urls[best]
}
