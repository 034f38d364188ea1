package source

import (
	"Dyvine/internal/apperr"
	"Dyvine/model"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *HTTPSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	src, err := NewHTTPSource(HTTPConfig{
		BaseURL:   srv.URL,
		Cookie:    "sid=1",
		UserAgent: "dyvine-test",
		Referer:   "https://www.douyin.com/",
	})
	require.NoError(t, err)
	return src
}

func TestListPostsDecodesPage(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/u1/posts", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("max_cursor"))
		assert.Equal(t, "20", r.URL.Query().Get("count"))
		assert.Equal(t, "sid=1", r.Header.Get("Cookie"))
		assert.Equal(t, "dyvine-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{
			"aweme_list": [
				{"aweme_id": "a1", "desc": "clip", "video": {"play_addr": {"url_list": ["", "https://cdn/v1.mp4"]}}},
				{"aweme_id": "a2", "images": [{"url_list": ["https://cdn/i1.jpg"]}, {"url_list": ["https://cdn/i2.jpg"]}]},
				{"aweme_id": ""}
			],
			"max_cursor": 1700000000,
			"has_more": 1
		}`))
	})

	page, err := src.ListPosts(context.Background(), "u1", "", 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "1700000000", page.NextCursor)
	assert.Equal(t, model.CategoryVideo, model.Classify(page.Items[0]).Category())
	assert.Equal(t, "https://cdn/v1.mp4", page.Items[0].VideoURL)
	assert.Equal(t, model.CategoryImages, model.Classify(page.Items[1]).Category())
}

func TestListPostsAdvancesEchoedCursor(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"aweme_list": [], "max_cursor": 42, "has_more": 1}`))
	})
	page, err := src.ListPosts(context.Background(), "u1", "42", 20)
	require.NoError(t, err)
	assert.Equal(t, "43", page.NextCursor)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   apperr.Code
	}{
		{http.StatusNotFound, apperr.NotFound},
		{http.StatusTooManyRequests, apperr.RateLimited},
		{http.StatusForbidden, apperr.AuthExpired},
		{http.StatusBadGateway, apperr.Upstream},
	}
	for _, tt := range tests {
		src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := src.GetPost(context.Background(), "p1")
		assert.Equal(t, tt.want, apperr.CodeOf(err), "status %d", tt.status)
	}
}

func TestMalformedResponseIsUpstream(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"aweme_detail": `))
	})
	_, err := src.GetPost(context.Background(), "p1")
	assert.Equal(t, apperr.Upstream, apperr.CodeOf(err))
}

func TestGetLiveRoom(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/u9/live", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": {"id_str": "r1", "status": 2, "owner": {"nickname": "nick"},
			"stream_url": {"hls_pull_url_map": {"HD1": "https://live/hd.m3u8"}, "flv_pull_url": {"SD1": "https://live/sd.flv"}}}}`))
	})
	room, err := src.GetLiveRoom(context.Background(), "u9")
	require.NoError(t, err)
	assert.True(t, room.IsLive())
	assert.Equal(t, "nick", room.Nickname)
	assert.Equal(t, "https://live/hd.m3u8", room.BestHLS())
}

func TestFakePaging(t *testing.T) {
	f := NewFake()
	for i := 0; i < 5; i++ {
		f.AddPosts("u", model.ContentItem{ID: string(rune('a' + i))})
	}
	page, err := f.ListPosts(context.Background(), "u", "", 2)
	require.NoError(t, err)
	assert.Equal(t, "2", page.NextCursor)
	assert.True(t, page.HasMore)

	page, err = f.ListPosts(context.Background(), "u", "4", 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	assert.Equal(t, 2, f.PageCalls())
}
