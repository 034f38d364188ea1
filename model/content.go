package model

import "strings"

// Category classifies a downloadable post.
type Category string

const (
	CategoryVideo      Category = "video"
	CategoryImages     Category = "images"
	CategoryMixed      Category = "mixed"
	CategoryLive       Category = "live"
	CategoryCollection Category = "collection"
	CategoryStory      Category = "story"
	CategoryUnknown    Category = "unknown"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryVideo,
	CategoryImages,
	CategoryMixed,
	CategoryLive,
	CategoryCollection,
	CategoryStory,
	CategoryUnknown,
}

// aweme_type values the platform uses for special post kinds.
const (
	awemeTypeLive       = 1
	awemeTypeCollection = 3
	awemeTypeStory      = 4
)

// Statistics holds engagement counters of a post.
type Statistics struct {
	DiggCount    int64 `json:"digg_count"`
	CommentCount int64 `json:"comment_count"`
	ShareCount   int64 `json:"share_count"`
	PlayCount    int64 `json:"play_count"`
}

// ContentItem is a post as returned by the content source.
type ContentItem struct {
	ID          string     `json:"aweme_id"`
	AwemeType   int        `json:"aweme_type"`
	Description string     `json:"desc"`
	CreateTime  int64      `json:"create_time"`
	AuthorID    string     `json:"author_id"`
	AuthorName  string     `json:"author_name"`
	VideoURL    string     `json:"video_url,omitempty"`
	ImageURLs   []string   `json:"image_urls,omitempty"`
	Statistics  Statistics `json:"statistics"`
}

// Page is one slice of a paged listing.
type Page struct {
	Items      []ContentItem `json:"items"`
	NextCursor string        `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
}

type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaImage MediaKind = "image"
)

// MediaRef is one fetchable media file of a post.
type MediaRef struct {
	URL  string
	Kind MediaKind
}

// Content is the classified view of a post. Each variant keeps only the
// media fields relevant to its category.
type Content interface {
	Category() Category
	Media() []MediaRef
}

type Video struct{ PlayURL string }

type Images struct{ ImageURLs []string }

type Mixed struct {
	PlayURL   string
	ImageURLs []string
}

// Live is a replay of a past livestream published as a post.
type Live struct{ PlayURL string }

type Collection struct {
	PlayURL   string
	ImageURLs []string
}

type Story struct {
	PlayURL   string
	ImageURLs []string
}

type Unknown struct{}

func (Video) Category() Category      { return CategoryVideo }
func (Images) Category() Category     { return CategoryImages }
func (Mixed) Category() Category      { return CategoryMixed }
func (Live) Category() Category       { return CategoryLive }
func (Collection) Category() Category { return CategoryCollection }
func (Story) Category() Category      { return CategoryStory }
func (Unknown) Category() Category    { return CategoryUnknown }

func (v Video) Media() []MediaRef  { return videoRefs(v.PlayURL) }
func (i Images) Media() []MediaRef { return imageRefs(i.ImageURLs) }
func (m Mixed) Media() []MediaRef  { return append(imageRefs(m.ImageURLs), videoRefs(m.PlayURL)...) }
func (l Live) Media() []MediaRef   { return videoRefs(l.PlayURL) }
func (c Collection) Media() []MediaRef {
	return append(imageRefs(c.ImageURLs), videoRefs(c.PlayURL)...)
}
func (s Story) Media() []MediaRef { return append(imageRefs(s.ImageURLs), videoRefs(s.PlayURL)...) }
func (Unknown) Media() []MediaRef { return nil }

func videoRefs(u string) []MediaRef {
	if strings.TrimSpace(u) == "" {
		return nil
	}
	return []MediaRef{{URL: u, Kind: MediaVideo}}
}

func imageRefs(urls []string) []MediaRef {
	out := make([]MediaRef, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			continue
		}
		out = append(out, MediaRef{URL: u, Kind: MediaImage})
	}
	return out
}

// Classify maps a post to its content variant. Posts that match no known
// shape classify as Unknown.
func Classify(item ContentItem) Content {
	images := imageRefs(item.ImageURLs)
	urls := make([]string, 0, len(images))
	for _, ref := range images {
		urls = append(urls, ref.URL)
	}
	hasVideo := strings.TrimSpace(item.VideoURL) != ""

	switch item.AwemeType {
	case awemeTypeLive:
		return Live{PlayURL: item.VideoURL}
	case awemeTypeCollection:
		return Collection{PlayURL: item.VideoURL, ImageURLs: urls}
	case awemeTypeStory:
		return Story{PlayURL: item.VideoURL, ImageURLs: urls}
	}
	switch {
	case len(urls) > 0 && hasVideo:
		return Mixed{PlayURL: item.VideoURL, ImageURLs: urls}
	case len(urls) > 0:
		return Images{ImageURLs: urls}
	case hasVideo:
		return Video{PlayURL: item.VideoURL}
	default:
		return Unknown{}
	}
}
