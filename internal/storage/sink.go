package storage

import (
	"Dyvine/internal/apperr"
	"context"
	"io"
	"os"
	"strings"
	"time"
)

// Sink uploads finished media to one bucket of a Store. A nil Sink or one
// without a store is disabled.
type Sink struct {
	store      Store
	bucket     string
	publicBase string
	timeout    time.Duration
}

// NewSink wraps store. publicBase, when set, prefixes returned urls.
func NewSink(store Store, bucket, publicBase string, timeout time.Duration) *Sink {
	return &Sink{
		store:      store,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		timeout:    timeout,
	}
}

// Enabled reports whether uploads go anywhere.
func (s *Sink) Enabled() bool {
	return s != nil && s.store != nil
}

// Put uploads reader under key and returns the object url.
func (s *Sink) Put(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) (string, error) {
	if !s.Enabled() {
		return "", apperr.New(apperr.Storage, "object storage is not configured")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.store.PutObject(ctx, s.bucket, key, reader, size, opts); err != nil {
		return "", apperr.Wrap(apperr.Storage, "upload "+key, err)
	}
	return s.URL(key), nil
}

// PutFile uploads the file at path under key.
func (s *Sink) PutFile(ctx context.Context, key, path string, opts PutOptions) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.Wrap(apperr.Storage, "open "+path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", apperr.Wrap(apperr.Storage, "stat "+path, err)
	}
	return s.Put(ctx, key, f, info.Size(), opts)
}

// URL returns the address clients use for key.
func (s *Sink) URL(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	return s.store.ObjectURL(s.bucket, key)
}
