// Package storage implements the capability-based private object gateway:
// bucket policies, org-scoped paths, HMAC-signed time-boxed URLs and the
// upload/download/delete flows on top of a hierarchical blob store.
package storage

import (
	"errors"
	"strings"

	"github.com/brickfolio/brickfolio/internal/identity"
)

// ErrUnknownBucket indicates the bucket name is not in the registry.
var ErrUnknownBucket = errors.New("storage: unknown bucket")

// BucketPolicy declares the constraints of one named storage bucket.
type BucketPolicy struct {
	ID           string
	AllowedMimes []string
	MaxFileSize  int64
	AllowedRoles []identity.SystemRole
	Subpath      string
}

// AllowsRole reports whether the role may use the bucket. Admin is always
// implicitly permitted regardless of the declared set.
func (p BucketPolicy) AllowsRole(role identity.SystemRole) bool {
	if role == identity.RoleAdmin {
		return true
	}
	for _, allowed := range p.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

// AllowsMime reports whether the content type is permitted. Entries of the
// form "image/*" match any subtype.
func (p BucketPolicy) AllowsMime(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	for _, allowed := range p.AllowedMimes {
		if allowed == mimeType {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowed, "/*"); ok && strings.HasPrefix(mimeType, prefix+"/") {
			return true
		}
	}
	return false
}

const mib = 1 << 20

// Registry is the immutable bucket policy table, loaded once at startup and
// safe for unbounded concurrent reads.
type Registry struct {
	policies map[string]BucketPolicy
}

// NewRegistry builds the static bucket table.
func NewRegistry() *Registry {
	policies := []BucketPolicy{
		{
			ID:           "property-images",
			AllowedMimes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
			MaxFileSize:  5 * mib,
			AllowedRoles: []identity.SystemRole{identity.RoleInvestor, identity.RoleTenant},
			Subpath:      "property-images",
		},
		{
			ID: "documents",
			AllowedMimes: []string{
				"application/pdf",
				"application/msword",
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
				"application/vnd.ms-excel",
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			},
			MaxFileSize:  10 * mib,
			AllowedRoles: []identity.SystemRole{identity.RoleInvestor, identity.RoleTenant},
			Subpath:      "documents",
		},
		{
			ID:           "avatars",
			AllowedMimes: []string{"image/*"},
			MaxFileSize:  2 * mib,
			AllowedRoles: []identity.SystemRole{identity.RoleInvestor, identity.RoleTenant},
			Subpath:      "avatars",
		},
		{
			ID:           "reports",
			AllowedMimes: []string{"application/pdf", "text/csv"},
			MaxFileSize:  20 * mib,
			AllowedRoles: nil, // admin only, via the implicit admin rule
			Subpath:      "reports",
		},
	}
	table := make(map[string]BucketPolicy, len(policies))
	for _, p := range policies {
		table[p.ID] = p
	}
	return &Registry{policies: table}
}

// Resolve returns the policy for the named bucket.
func (r *Registry) Resolve(name string) (BucketPolicy, error) {
	policy, ok := r.policies[name]
	if !ok {
		return BucketPolicy{}, ErrUnknownBucket
	}
	return policy, nil
}

// VisibleTo lists the buckets the given role may use.
func (r *Registry) VisibleTo(role identity.SystemRole) []BucketPolicy {
	var visible []BucketPolicy
	for _, p := range r.policies {
		if p.AllowsRole(role) {
			visible = append(visible, p)
		}
	}
	return visible
}
