package storage

import (
	"Dyvine/config"
	"context"
	"fmt"
	"io"
)

// PutOptions describes upload options for object storage.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store abstracts the object storage backends.
type Store interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts PutOptions) error
	RemoveObject(ctx context.Context, bucket, object string) error
	EnsureBucket(ctx context.Context, bucket string) error
	// ObjectURL is the address of an object as seen by the backend.
	ObjectURL(bucket, object string) string
}

// NewStoreFromConfig builds the configured backend. It returns nil when no
// object store is configured.
func NewStoreFromConfig(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case config.StorageBackendMinio:
		store, err = NewMinioStoreFromConfig(cfg)
	case config.StorageBackendS3:
		store, err = NewS3StoreFromConfig(ctx, cfg)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("init %s store: %w", cfg.Backend, err)
	}
	if err := store.EnsureBucket(ctx, cfg.Bucket); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	return store, nil
}
