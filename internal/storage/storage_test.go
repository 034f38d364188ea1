package storage

import (
	"Dyvine/internal/apperr"
	"Dyvine/model"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaKeyLayout(t *testing.T) {
	now := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)
	key := MediaKey(model.CategoryImages, "MS4wLjABAAAA", "sunset🌅 at the beach", "jpg", now)

	re := regexp.MustCompile(`^images/MS4wLjABAAAA/20250309_([A-Za-z0-9_-]+)_([0-9a-f]{8})\.jpg$`)
	m := re.FindStringSubmatch(key)
	require.NotNil(t, m, key)
	name, err := base64.RawURLEncoding.DecodeString(m[1])
	require.NoError(t, err)
	assert.Equal(t, "sunset at the beach", string(name))
}

func TestMediaKeyIsUnique(t *testing.T) {
	now := time.Now()
	a := MediaKey(model.CategoryVideo, "u", "same", "mp4", now)
	b := MediaKey(model.CategoryVideo, "u", "same", "mp4", now)
	assert.NotEqual(t, a, b)
}

func TestLivestreamKey(t *testing.T) {
	started := time.UnixMilli(1700000000123)
	assert.Equal(t, "livestreams/u1/01HXYZ/1700000000123.ts", LivestreamKey("u1", "01HXYZ", "ts", started))
	assert.Equal(t, "livestreams/u1/01HXYZ/1700000000123.flv", LivestreamKey("u1", "01HXYZ", "flv", started))
}

func TestMediaExt(t *testing.T) {
	assert.Equal(t, "mp4", MediaExt(model.MediaVideo, "https://cdn/x.mov", "video/quicktime"))
	assert.Equal(t, "webp", MediaExt(model.MediaImage, "https://cdn/a/b.WEBP?x=1", ""))
	assert.Equal(t, "jpg", MediaExt(model.MediaImage, "https://cdn/a/b", "image/jpeg"))
	assert.Equal(t, "png", MediaExt(model.MediaImage, "https://cdn/a/b.image", "image/png; charset=binary"))
	assert.Equal(t, "bin", MediaExt(model.MediaImage, "https://cdn/a/b", ""))
}

func TestMetadataEncodesAuthor(t *testing.T) {
	meta := Metadata("作者", "video", "video/mp4", time.Unix(0, 0))
	decoded, err := base64.StdEncoding.DecodeString(meta["author"])
	require.NoError(t, err)
	assert.Equal(t, "作者", string(decoded))
	assert.Equal(t, "douyin", meta["source"])
	assert.Equal(t, "1970-01-01T00:00:00Z", meta["created-date"])
}

func TestLocalPlace(t *testing.T) {
	l := NewLocal(t.TempDir())
	f, err := l.TempFile("media-*")
	require.NoError(t, err)
	_, err = f.WriteString("payload")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	dst, err := l.Place(f.Name(), "video/u1/20250101_x_abcd1234.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.Root(), "video", "u1", "20250101_x_abcd1234.mp4"), dst)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	_, err = os.Stat(f.Name())
	assert.True(t, os.IsNotExist(err))
}

func TestLocalPlaceMissingSourceIsStorageError(t *testing.T) {
	l := NewLocal(t.TempDir())
	_, err := l.Place(filepath.Join(l.Root(), "missing"), "a/b.mp4")
	assert.True(t, apperr.IsCode(err, apperr.Storage))
}

func TestSinkPut(t *testing.T) {
	store := NewMemoryStore()
	sink := NewSink(store, "media", "https://cdn.example.com/", time.Second)
	require.True(t, sink.Enabled())

	url, err := sink.Put(context.Background(), "video/u/k.mp4", strings.NewReader("abc"), 3, PutOptions{ContentType: "video/mp4"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/video/u/k.mp4", url)
	obj, ok := store.Get("media", "video/u/k.mp4")
	require.True(t, ok)
	assert.Equal(t, "abc", string(obj.Data))
	assert.Equal(t, "video/mp4", obj.Options.ContentType)
}

func TestSinkRejectionIsStorageError(t *testing.T) {
	store := NewMemoryStore()
	store.RejectPrefix = "images/"
	sink := NewSink(store, "media", "", 0)

	_, err := sink.Put(context.Background(), "images/u/a.jpg", strings.NewReader("x"), 1, PutOptions{})
	assert.True(t, apperr.IsCode(err, apperr.Storage))

	url, err := sink.Put(context.Background(), "video/u/a.mp4", strings.NewReader("x"), 1, PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mem://media/video/u/a.mp4", url)
}

func TestDisabledSink(t *testing.T) {
	var sink *Sink
	assert.False(t, sink.Enabled())
	assert.False(t, NewSink(nil, "b", "", 0).Enabled())
}
