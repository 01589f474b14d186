package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedPathJoins(t *testing.T) {
	policy := BucketPolicy{Subpath: "documents"}

	path, err := ScopedPath(policy, "org-1", "", "", "file.pdf")
	require.NoError(t, err)
	require.Equal(t, "private/documents/org-1/file.pdf", path)

	path, err = ScopedPath(policy, "org-1", "lease", "42", "file.pdf")
	require.NoError(t, err)
	require.Equal(t, "private/documents/org-1/lease/42/file.pdf", path)

	// entityID without entityType is ignored.
	path, err = ScopedPath(policy, "org-1", "", "42", "file.pdf")
	require.NoError(t, err)
	require.Equal(t, "private/documents/org-1/file.pdf", path)
}

func TestScopedPathIsDeterministic(t *testing.T) {
	policy := BucketPolicy{Subpath: "avatars"}
	a, err := ScopedPath(policy, "org-1", "unit", "7", "x.png")
	require.NoError(t, err)
	b, err := ScopedPath(policy, "org-1", "unit", "7", "x.png")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestScopedPathRejectsTraversal(t *testing.T) {
	policy := BucketPolicy{Subpath: "documents"}

	for _, bad := range []string{"..", ".", "a/b", "a\\b", "x\x00y"} {
		_, err := ScopedPath(policy, "org-1", bad, "42", "file.pdf")
		require.ErrorIs(t, err, ErrInvalidPathSegment, "entityType %q", bad)

		_, err = ScopedPath(policy, "org-1", "lease", "42", bad)
		require.ErrorIs(t, err, ErrInvalidPathSegment, "filename %q", bad)
	}

	_, err := ScopedPath(policy, "../other", "", "", "file.pdf")
	require.ErrorIs(t, err, ErrInvalidPathSegment)
}

func TestOrgSegment(t *testing.T) {
	org, ok := OrgSegment("private/documents/org-1/file.pdf")
	require.True(t, ok)
	require.Equal(t, "org-1", org)

	org, ok = OrgSegment("private/documents/org-1/lease/42/file.pdf")
	require.True(t, ok)
	require.Equal(t, "org-1", org)

	for _, bad := range []string{
		"",
		"documents/org-1/file.pdf",
		"private/documents/org-1",
		"private/documents/../file.pdf",
		"public/documents/org-1/file.pdf",
	} {
		_, ok := OrgSegment(bad)
		require.False(t, ok, "path %q", bad)
	}
}
