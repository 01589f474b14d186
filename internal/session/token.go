// Package session implements credential issuance and the per-request
// authorization chain: signed access tokens carrying an org/role snapshot,
// cookie-stored refresh tokens, and org switching without re-login.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/brickfolio/brickfolio/internal/identity"
)

const (
	issuer           = "brickfolio"
	refreshTokenType = "refresh"
)

// ErrInvalidToken indicates a token failed signature, algorithm, expiry or
// type validation. Callers never learn which check failed.
var ErrInvalidToken = errors.New("session: invalid token")

// OrgClaim is one membership snapshotted into an access token at issuance.
type OrgClaim struct {
	ID   string           `json:"id"`
	Role identity.OrgRole `json:"role"`
}

// AccessClaims is the payload of an access token. The org list is a
// denormalized snapshot of live memberships; it goes stale until the next
// refresh, bounded by the access-token TTL.
type AccessClaims struct {
	Email      string              `json:"email"`
	Role       identity.SystemRole `json:"role"`
	Orgs       []OrgClaim          `json:"orgs,omitempty"`
	CurrentOrg string              `json:"current_org,omitempty"`
	jwt.RegisteredClaims
}

// OrgRole looks up the embedded role for the given org id.
func (c *AccessClaims) OrgRole(orgID string) (identity.OrgRole, bool) {
	for _, org := range c.Orgs {
		if org.ID == orgID {
			return org.Role, true
		}
	}
	return "", false
}

// RefreshClaims is the payload of a refresh token. The type discriminator
// prevents a refresh token from being replayed as an access token.
type RefreshClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenCodec encodes and decodes signed access and refresh credentials.
// The two secrets are distinct so that a leaked refresh secret cannot forge
// access tokens, and vice versa.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenCodec constructs a codec from the two signing secrets.
func NewTokenCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessTTL exposes the configured access-token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL exposes the configured refresh-token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccessToken signs an HS256 access token embedding the principal's
// identity and a snapshot of its memberships. The absolute expiry is computed
// here, at issuance; the issuance clock is authoritative. currentOrg may be
// uuid.Nil for principals without an organization context.
func (c *TokenCodec) IssueAccessToken(p *identity.Principal, memberships []identity.Membership, currentOrg uuid.UUID) (string, error) {
	orgs := make([]OrgClaim, 0, len(memberships))
	for _, m := range memberships {
		orgs = append(orgs, OrgClaim{ID: m.OrganizationID.String(), Role: m.Role})
	}

	claims := AccessClaims{
		Email: p.Email,
		Role:  p.Role,
		Orgs:  orgs,
	}
	if currentOrg != uuid.Nil {
		if _, ok := membershipFor(memberships, currentOrg); !ok {
			return "", errors.New("session: current org not in membership snapshot")
		}
		claims.CurrentOrg = currentOrg.String()
	}

	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   p.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// IssueRefreshToken signs a long-lived HS256 refresh token for the subject,
// using the refresh secret.
func (c *TokenCodec) IssueRefreshToken(subjectID uuid.UUID) (string, error) {
	now := time.Now().UTC()
	claims := RefreshClaims{
		TokenType: refreshTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// VerifyAccessToken validates signature, algorithm and expiry, returning the
// embedded claims.
func (c *TokenCodec) VerifyAccessToken(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(token, &claims, c.accessSecret); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.CurrentOrg != "" {
		if _, ok := claims.OrgRole(claims.CurrentOrg); !ok {
			return nil, ErrInvalidToken
		}
	}
	return &claims, nil
}

// VerifyRefreshToken validates a refresh token, including its type
// discriminator.
func (c *TokenCodec) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(token, &claims, c.refreshSecret); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != refreshTokenType {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func (c *TokenCodec) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

func membershipFor(memberships []identity.Membership, orgID uuid.UUID) (identity.Membership, bool) {
	for _, m := range memberships {
		if m.OrganizationID == orgID {
			return m, true
		}
	}
	return identity.Membership{}, false
}
