package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MemoryObject is an object held by MemoryStore.
type MemoryObject struct {
	Data    []byte
	Options PutOptions
}

// MemoryStore is an in-process Store used when running without an object
// store backend in tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]MemoryObject
	// RejectPrefix makes PutObject fail for keys starting with it.
	RejectPrefix string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]MemoryObject{}}
}

func (m *MemoryStore) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts PutOptions) error {
	if m.RejectPrefix != "" && strings.HasPrefix(object, m.RejectPrefix) {
		return fmt.Errorf("put %s: access denied", object)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+object] = MemoryObject{Data: buf.Bytes(), Options: opts}
	return nil
}

func (m *MemoryStore) RemoveObject(ctx context.Context, bucket, object string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+object)
	return nil
}

func (m *MemoryStore) EnsureBucket(ctx context.Context, bucket string) error {
	return nil
}

func (m *MemoryStore) ObjectURL(bucket, object string) string {
	return "mem://" + bucket + "/" + object
}

// Get returns a stored object.
func (m *MemoryStore) Get(bucket, object string) (MemoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+object]
	return obj, ok
}

// Keys lists stored object keys, sorted.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
