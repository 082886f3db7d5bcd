package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalClient stores objects as files below a root directory. The root
// plays the role of the bucket.
type LocalClient struct {
	root string
}

// NewLocalClient constructs a filesystem-backed client rooted at dir.
func NewLocalClient(dir string) (*LocalClient, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("local storage directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &LocalClient{root: abs}, nil
}

// EnsureBucket creates the root directory when missing.
func (l *LocalClient) EnsureBucket(_ context.Context) error {
	return os.MkdirAll(l.root, 0o755)
}

// Put writes the object to a temporary file and renames it into place.
func (l *LocalClient) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	target, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// Get opens the object for reading.
func (l *LocalClient) Get(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the object. Missing objects are not an error.
func (l *LocalClient) Delete(_ context.Context, key string) error {
	target, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Bucket returns the root directory.
func (l *LocalClient) Bucket() string {
	return l.root
}

func (l *LocalClient) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + key))
	target := filepath.Join(l.root, clean)
	if !strings.HasPrefix(target, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return target, nil
}

// Close is a no-op; the client holds no resources.
func (*LocalClient) Close() error {
	return nil
}
