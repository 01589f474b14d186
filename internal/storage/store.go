package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrObjectNotFound distinguishes a missing object from other I/O failures.
var ErrObjectNotFound = errors.New("storage: object not found")

// BlobStore is the hierarchical write/read/delete namespace assumed by the
// gateway. The local filesystem implementation below is the reference
// backend; an object-store backend only needs to satisfy this interface.
type BlobStore interface {
	Write(ctx context.Context, path string, r io.Reader) (int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// LocalStore stores objects as files under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore constructs a LocalStore rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

func (s *LocalStore) resolve(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// Write streams r to the path. The bytes go to a temporary sibling first and
// are renamed into place, so a cancelled upload never leaves a partial file
// visible at its final path. Two concurrent uploads creating the same org
// subtree race on MkdirAll; that race is benign.
func (s *LocalStore) Write(ctx context.Context, path string, r io.Reader) (int64, error) {
	target := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	written, err := io.Copy(tmp, readerContext(ctx, r))
	if err != nil {
		return 0, fmt.Errorf("storage: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, fmt.Errorf("storage: rename: %w", err)
	}
	return written, nil
}

// Open returns a reader for the object at path.
func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(s.resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	return f, nil
}

// Delete removes the object at path.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(s.resolve(path)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// Root exposes the store's base directory for maintenance jobs.
func (s *LocalStore) Root() string { return s.root }

var _ BlobStore = (*LocalStore)(nil)

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
