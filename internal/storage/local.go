package storage

import (
	"Dyvine/internal/apperr"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// Local persists media under a root directory using the same key layout as
// the object store.
type Local struct {
	root string
}

// NewLocal returns a Local rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Root returns the root directory.
func (l *Local) Root() string {
	return l.root
}

// Path returns the absolute location of key.
func (l *Local) Path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// TempFile creates a scratch file below the root so that Place can rename it
// without crossing filesystems.
func (l *Local) TempFile(pattern string) (*os.File, error) {
	dir := filepath.Join(l.root, ".tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.Storage, "create temp dir", err)
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "create temp file", err)
	}
	return f, nil
}

// TempDir creates a scratch directory below the root.
func (l *Local) TempDir(pattern string) (string, error) {
	base := filepath.Join(l.root, ".tmp")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", apperr.Wrap(apperr.Storage, "create temp dir", err)
	}
	dir, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return "", apperr.Wrap(apperr.Storage, "create temp dir", err)
	}
	return dir, nil
}

// Place moves src to the location of key and returns that path.
func (l *Local) Place(src, key string) (string, error) {
	dst := l.Path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", apperr.Wrap(apperr.Storage, "create media dir", err)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return dst, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", apperr.Wrap(apperr.Storage, "move "+key, err)
	}
	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return "", apperr.Wrap(apperr.Storage, "copy "+key, err)
	}
	_ = os.Remove(src)
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
