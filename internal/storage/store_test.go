package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStoreWriteOpenDelete(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	written, err := store.Write(ctx, "private/documents/org-1/a.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	require.Equal(t, int64(4), written)

	reader, err := store.Open(ctx, "private/documents/org-1/a.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, reader.Close())
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(data))

	require.NoError(t, store.Delete(ctx, "private/documents/org-1/a.pdf"))
	require.ErrorIs(t, store.Delete(ctx, "private/documents/org-1/a.pdf"), ErrObjectNotFound)

	_, err = store.Open(ctx, "private/documents/org-1/a.pdf")
	require.ErrorIs(t, err, ErrObjectNotFound)
}

type failingReader struct {
	data io.Reader
}

func (r *failingReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if errors.Is(err, io.EOF) {
		return n, errors.New("connection reset")
	}
	return n, err
}

func TestWriteFailureLeavesNoVisibleFile(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)

	_, err := store.Write(context.Background(), "private/documents/org-1/a.pdf",
		&failingReader{data: strings.NewReader("partial")})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, "private", "documents", "org-1", "a.pdf"))
	require.True(t, errors.Is(statErr, fs.ErrNotExist))

	// The aborted temp file is cleaned up immediately too.
	entries, _ := os.ReadDir(filepath.Join(root, "private", "documents", "org-1"))
	require.Empty(t, entries)
}

func TestWriteHonorsContextCancellation(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Write(ctx, "private/documents/org-1/a.pdf", strings.NewReader("%PDF"))
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, "private", "documents", "org-1", "a.pdf"))
	require.True(t, errors.Is(statErr, fs.ErrNotExist))
}

func TestWriteCreatesParentsIdempotently(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	// Same subtree twice; the second MkdirAll hits the existing directory.
	_, err := store.Write(ctx, "private/avatars/org-1/a.png", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = store.Write(ctx, "private/avatars/org-1/b.png", strings.NewReader("b"))
	require.NoError(t, err)
}
