// Package identity holds the principal, organization and membership domain
// shared by session issuance and storage authorization.
package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SystemRole is the platform-wide role attached to a principal.
type SystemRole string

const (
	RoleAdmin    SystemRole = "admin"
	RoleInvestor SystemRole = "investor"
	RoleTenant   SystemRole = "tenant"
	RolePublic   SystemRole = "public"
)

// PublicRegistrable reports whether the role may be chosen at self-registration.
func (r SystemRole) PublicRegistrable() bool {
	return r == RoleInvestor || r == RoleTenant
}

// Valid reports whether the role is one of the known system roles.
func (r SystemRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleInvestor, RoleTenant, RolePublic:
		return true
	}
	return false
}

// OrgRole is a principal's role inside one organization.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
	OrgRoleViewer OrgRole = "viewer"
)

// MembershipStatus tracks the lifecycle of a membership row.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipPending   MembershipStatus = "pending"
	MembershipSuspended MembershipStatus = "suspended"
	MembershipInactive  MembershipStatus = "inactive"
)

// Principal represents an authenticated identity independent of any organization.
// Principals are soft-deactivated via IsActive, never hard-deleted.
type Principal struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FullName     string
	Role         SystemRole
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Organization is a tenant boundary; principals join via memberships.
type Organization struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
}

// Membership ties a principal to an organization with an org-scoped role.
type Membership struct {
	PrincipalID    uuid.UUID
	OrganizationID uuid.UUID
	OrgName        string
	OrgSlug        string
	Role           OrgRole
	Status         MembershipStatus
	CreatedAt      time.Time
}

// Sentinel errors for the identity repository.
var (
	ErrNotFound       = errors.New("identity: not found")
	ErrDuplicateEmail = errors.New("identity: email already registered")
)
