package source

import (
	"Dyvine/internal/apperr"
	"Dyvine/model"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig configures the gateway client.
type HTTPConfig struct {
	BaseURL   string
	Cookie    string
	UserAgent string
	Referer   string
	Proxy     string
	Timeout   time.Duration
	Rate      float64
	Burst     int
}

// HTTPSource talks to the platform through a JSON gateway that signs
// requests on our behalf.
type HTTPSource struct {
	baseURL string
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSource builds a gateway client.
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("source base url is required")
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid source proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Inf, burst)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return &HTTPSource{
		baseURL: base,
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		limiter: limiter,
	}, nil
}

// Headers returns the request headers media downloads must carry for the
// platform CDN to serve them.
func (s *HTTPSource) Headers() http.Header {
	return PlatformHeaders(s.cfg.UserAgent, s.cfg.Referer, s.cfg.Cookie)
}

// PlatformHeaders builds the browser-like headers the platform expects.
func PlatformHeaders(userAgent, referer, cookie string) http.Header {
	h := http.Header{}
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	if referer != "" {
		h.Set("Referer", referer)
	}
	if cookie != "" {
		h.Set("Cookie", cookie)
	}
	return h
}

type authorWire struct {
	UID      string `json:"uid"`
	SecUID   string `json:"sec_uid"`
	Nickname string `json:"nickname"`
}

type urlListWire struct {
	URLList []string `json:"url_list"`
}

func (u urlListWire) first() string {
	for _, v := range u.URLList {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type awemeWire struct {
	AwemeID    string     `json:"aweme_id"`
	AwemeType  int        `json:"aweme_type"`
	Desc       string     `json:"desc"`
	CreateTime int64      `json:"create_time"`
	Author     authorWire `json:"author"`
	Video      *struct {
		PlayAddr urlListWire `json:"play_addr"`
	} `json:"video"`
	Images     []urlListWire    `json:"images"`
	Statistics model.Statistics `json:"statistics"`
}

func (a awemeWire) toItem() model.ContentItem {
	item := model.ContentItem{
		ID:          a.AwemeID,
		AwemeType:   a.AwemeType,
		Description: a.Desc,
		CreateTime:  a.CreateTime,
		AuthorID:    a.Author.SecUID,
		AuthorName:  a.Author.Nickname,
		Statistics:  a.Statistics,
	}
	if item.AuthorID == "" {
		item.AuthorID = a.Author.UID
	}
	for _, img := range a.Images {
		if u := img.first(); u != "" {
			item.ImageURLs = append(item.ImageURLs, u)
		}
	}
	if a.Video != nil {
		item.VideoURL = a.Video.PlayAddr.first()
	}
	return item
}

type pageWire struct {
	AwemeList []awemeWire `json:"aweme_list"`
	MaxCursor int64       `json:"max_cursor"`
	HasMore   int         `json:"has_more"`
}

type userWire struct {
	User struct {
		SecUID         string      `json:"sec_uid"`
		UID            string      `json:"uid"`
		Nickname       string      `json:"nickname"`
		Signature      string      `json:"signature"`
		AvatarLarger   urlListWire `json:"avatar_larger"`
		FollowingCount int64       `json:"following_count"`
		FollowerCount  int64       `json:"follower_count"`
		TotalFavorited int64       `json:"total_favorited"`
		AwemeCount     int64       `json:"aweme_count"`
		RoomID         int64       `json:"room_id"`
	} `json:"user"`
}

type roomWire struct {
	Data struct {
		RoomID    string     `json:"id_str"`
		Title     string     `json:"title"`
		Status    int        `json:"status"`
		UserCount int64      `json:"user_count"`
		Owner     authorWire `json:"owner"`
		StreamURL struct {
			FLVPullURL map[string]string `json:"flv_pull_url"`
			HLSPullURL map[string]string `json:"hls_pull_url_map"`
		} `json:"stream_url"`
	} `json:"data"`
}

// GetUser fetches a user profile.
func (s *HTTPSource) GetUser(ctx context.Context, userID string) (model.UserProfile, error) {
	var wire userWire
	if err := s.getJSON(ctx, "/users/"+url.PathEscape(userID), nil, &wire); err != nil {
		return model.UserProfile{}, err
	}
	u := wire.User
	if u.SecUID == "" && u.UID == "" {
		return model.UserProfile{}, apperr.Newf(apperr.NotFound, "user %s not found", userID)
	}
	profile := model.UserProfile{
		UserID:         userID,
		Nickname:       u.Nickname,
		AvatarURL:      u.AvatarLarger.first(),
		Signature:      u.Signature,
		FollowingCount: u.FollowingCount,
		FollowerCount:  u.FollowerCount,
		TotalFavorited: u.TotalFavorited,
		PostCount:      u.AwemeCount,
		IsLiving:       u.RoomID != 0,
	}
	if u.RoomID != 0 {
		profile.RoomID = strconv.FormatInt(u.RoomID, 10)
	}
	return profile, nil
}

// ListPosts fetches one page of a user's posts.
func (s *HTTPSource) ListPosts(ctx context.Context, userID, cursor string, count int) (model.Page, error) {
	return s.listPage(ctx, "/users/"+url.PathEscape(userID)+"/posts", cursor, count)
}

// ListLikes fetches one page of a user's liked posts.
func (s *HTTPSource) ListLikes(ctx context.Context, userID, cursor string, count int) (model.Page, error) {
	return s.listPage(ctx, "/users/"+url.PathEscape(userID)+"/likes", cursor, count)
}

func (s *HTTPSource) listPage(ctx context.Context, path, cursor string, count int) (model.Page, error) {
	if cursor == "" {
		cursor = "0"
	}
	current, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return model.Page{}, apperr.Newf(apperr.Validation, "invalid cursor %q", cursor)
	}
	query := url.Values{}
	query.Set("max_cursor", cursor)
	query.Set("count", strconv.Itoa(count))

	var wire pageWire
	if err := s.getJSON(ctx, path, query, &wire); err != nil {
		return model.Page{}, err
	}
	page := model.Page{
		Items:   make([]model.ContentItem, 0, len(wire.AwemeList)),
		HasMore: wire.HasMore == 1,
	}
	for _, a := range wire.AwemeList {
		if a.AwemeID == "" {
			continue
		}
		page.Items = append(page.Items, a.toItem())
	}
	next := wire.MaxCursor
	// the platform occasionally echoes the request cursor, which would loop forever
	if page.HasMore && next == current {
		next = current + 1
	}
	page.NextCursor = strconv.FormatInt(next, 10)
	return page, nil
}

// GetPost fetches a single post.
func (s *HTTPSource) GetPost(ctx context.Context, postID string) (model.ContentItem, error) {
	var wire struct {
		AwemeDetail *awemeWire `json:"aweme_detail"`
	}
	if err := s.getJSON(ctx, "/posts/"+url.PathEscape(postID), nil, &wire); err != nil {
		return model.ContentItem{}, err
	}
	if wire.AwemeDetail == nil || wire.AwemeDetail.AwemeID == "" {
		return model.ContentItem{}, apperr.Newf(apperr.NotFound, "post %s not found", postID)
	}
	return wire.AwemeDetail.toItem(), nil
}

// GetLiveRoom resolves a user's live room and pull urls.
func (s *HTTPSource) GetLiveRoom(ctx context.Context, userID string) (model.LiveRoom, error) {
	var wire roomWire
	if err := s.getJSON(ctx, "/users/"+url.PathEscape(userID)+"/live", nil, &wire); err != nil {
		return model.LiveRoom{}, err
	}
	d := wire.Data
	if d.RoomID == "" {
		return model.LiveRoom{}, apperr.Newf(apperr.NotFound, "live room of %s not found", userID)
	}
	return model.LiveRoom{
		RoomID:     d.RoomID,
		UserID:     userID,
		Nickname:   d.Owner.Nickname,
		Title:      d.Title,
		LiveStatus: d.Status,
		UserCount:  d.UserCount,
		FLVPullURL: d.StreamURL.FLVPullURL,
		HLSPullURL: d.StreamURL.HLSPullURL,
	}, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return apperr.Wrap(apperr.Upstream, "rate limiter", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build request", err)
	}
	for k, v := range s.Headers() {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Upstream, "request "+path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp, path); err != nil {
		return err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return apperr.Wrap(apperr.Upstream, "read "+path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.Upstream, "malformed response from "+path, err)
	}
	return nil
}

func statusError(resp *http.Response, path string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperr.Newf(apperr.NotFound, "%s not found", path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.Newf(apperr.RateLimited, "rate limited on %s", path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.Newf(apperr.AuthExpired, "credentials rejected on %s: %s", path, resp.Status)
	default:
		return apperr.Newf(apperr.Upstream, "bad status on %s: %s", path, resp.Status)
	}
}
