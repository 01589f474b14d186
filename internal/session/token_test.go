package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/brickfolio/brickfolio/internal/identity"
)

func testCodec() *TokenCodec {
	return NewTokenCodec("access-secret", "refresh-secret", 15*time.Minute, 14*24*time.Hour)
}

func testPrincipal() *identity.Principal {
	return &identity.Principal{
		ID:       uuid.New(),
		Email:    "elena@example.com",
		Role:     identity.RoleInvestor,
		IsActive: true,
	}
}

func testMemberships(principalID uuid.UUID) []identity.Membership {
	return []identity.Membership{
		{PrincipalID: principalID, OrganizationID: uuid.New(), Role: identity.OrgRoleMember},
		{PrincipalID: principalID, OrganizationID: uuid.New(), Role: identity.OrgRoleOwner},
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	codec := testCodec()
	principal := testPrincipal()
	memberships := testMemberships(principal.ID)

	token, err := codec.IssueAccessToken(principal, memberships, memberships[0].OrganizationID)
	require.NoError(t, err)

	claims, err := codec.VerifyAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, principal.ID.String(), claims.Subject)
	require.Equal(t, principal.Email, claims.Email)
	require.Equal(t, identity.RoleInvestor, claims.Role)
	require.Len(t, claims.Orgs, 2)
	require.Equal(t, memberships[0].OrganizationID.String(), claims.CurrentOrg)

	role, ok := claims.OrgRole(claims.CurrentOrg)
	require.True(t, ok)
	require.Equal(t, identity.OrgRoleMember, role)
}

func TestAccessTokenWithoutCurrentOrg(t *testing.T) {
	codec := testCodec()
	principal := testPrincipal()

	token, err := codec.IssueAccessToken(principal, nil, uuid.Nil)
	require.NoError(t, err)

	claims, err := codec.VerifyAccessToken(token)
	require.NoError(t, err)
	require.Empty(t, claims.CurrentOrg)
	require.Empty(t, claims.Orgs)
}

func TestIssueRejectsCurrentOrgOutsideSnapshot(t *testing.T) {
	codec := testCodec()
	principal := testPrincipal()
	memberships := testMemberships(principal.ID)

	_, err := codec.IssueAccessToken(principal, memberships, uuid.New())
	require.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	principal := testPrincipal()
	token, err := testCodec().IssueAccessToken(principal, nil, uuid.Nil)
	require.NoError(t, err)

	other := NewTokenCodec("different", "refresh-secret", 15*time.Minute, time.Hour)
	_, err = other.VerifyAccessToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	expired := NewTokenCodec("access-secret", "refresh-secret", -time.Minute, time.Hour)
	token, err := expired.IssueAccessToken(testPrincipal(), nil, uuid.Nil)
	require.NoError(t, err)

	_, err = testCodec().VerifyAccessToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenTypeDiscriminator(t *testing.T) {
	codec := testCodec()
	subject := uuid.New()

	refresh, err := codec.IssueRefreshToken(subject)
	require.NoError(t, err)

	claims, err := codec.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	require.Equal(t, subject.String(), claims.Subject)

	// An access token signed with the access secret must never pass refresh
	// verification, and vice versa.
	access, err := codec.IssueAccessToken(testPrincipal(), nil, uuid.Nil)
	require.NoError(t, err)
	_, err = codec.VerifyRefreshToken(access)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = codec.VerifyAccessToken(refresh)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	codec := testCodec()
	token, err := codec.IssueAccessToken(testPrincipal(), nil, uuid.Nil)
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = codec.VerifyAccessToken(tampered)
	require.ErrorIs(t, err, ErrInvalidToken)
}
