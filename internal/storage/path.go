package storage

import (
	"errors"
	"strings"
)

// pathPrefix roots every stored object under the private namespace.
const pathPrefix = "private"

// ErrInvalidPathSegment indicates a client-supplied segment would escape or
// malform the scoped path.
var ErrInvalidPathSegment = errors.New("storage: invalid path segment")

// ScopedPath deterministically joins
// private/{bucket.Subpath}/{orgID}[/{entityType}[/{entityID}]]/{filename}.
// Determinism matters: this string is the sole input to signed-URL
// verification, so any two callers with the same inputs must produce
// byte-identical paths.
func ScopedPath(policy BucketPolicy, orgID, entityType, entityID, filename string) (string, error) {
	segments := []string{pathPrefix, policy.Subpath, orgID}
	if entityType != "" {
		segments = append(segments, entityType)
		if entityID != "" {
			segments = append(segments, entityID)
		}
	}
	if filename != "" {
		segments = append(segments, filename)
	}
	for _, segment := range segments {
		if !validSegment(segment) {
			return "", ErrInvalidPathSegment
		}
	}
	return strings.Join(segments, "/"), nil
}

// OrgSegment extracts the owning organization from a scoped path. The org id
// is always the third segment.
func OrgSegment(path string) (string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 4 || parts[0] != pathPrefix {
		return "", false
	}
	for _, part := range parts {
		if !validSegment(part) {
			return "", false
		}
	}
	return parts[2], true
}

func validSegment(segment string) bool {
	if segment == "" || segment == "." || segment == ".." {
		return false
	}
	return !strings.ContainsAny(segment, "/\\\x00")
}
