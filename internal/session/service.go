package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/brickfolio/brickfolio/internal/identity"
)

// MinPasswordLength is the inclusive lower bound for registration passwords.
const MinPasswordLength = 6

// Sentinel errors for session flows.
var (
	// ErrInvalidCredentials covers missing principal, inactive principal,
	// absent hash and hash mismatch alike, so login failures cannot be used
	// to enumerate accounts.
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	ErrMissingFields      = errors.New("session: missing required fields")
	ErrPasswordTooWeak    = errors.New("session: password too weak")
	ErrInvalidRole        = errors.New("session: role not allowed for registration")
	ErrUserExists         = errors.New("session: user already exists")
	ErrNoRefreshToken     = errors.New("session: refresh token missing")
	ErrUserNotFound       = errors.New("session: user not found")
	ErrMissingOrgID       = errors.New("session: organization id required")
	ErrNotOrgMember       = errors.New("session: not a member of organization")
)

// Session is the result of a successful issuance flow.
type Session struct {
	Principal    *identity.Principal
	Memberships  []identity.Membership
	CurrentOrg   uuid.UUID
	AccessToken  string
	RefreshToken string
}

// Service orchestrates login, registration, refresh, org switching and the
// live principal view.
type Service struct {
	repo   identity.Repository
	hasher identity.PasswordHasher
	codec  *TokenCodec
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo identity.Repository, codec *TokenCodec, logger *slog.Logger) *Service {
	return &Service{repo: repo, codec: codec, logger: logger}
}

// Login verifies credentials and issues a fresh token pair. The default
// current org is the earliest-created active membership, when one exists.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	principal, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !principal.IsActive || principal.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Compare(principal.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.StampLastLogin(ctx, principal.ID); err != nil {
		s.logger.Warn("stamp last login", slog.Any("error", err))
	}

	memberships, err := s.repo.ActiveMemberships(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	currentOrg := defaultOrg(memberships)

	return s.issue(principal, memberships, currentOrg, true)
}

// RegisterParams carries the self-registration input.
type RegisterParams struct {
	Email    string
	Password string
	FullName string
	Role     identity.SystemRole
}

// Register creates a principal with no memberships and issues tokens without
// an organization context.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Session, error) {
	params.Email = strings.TrimSpace(params.Email)
	if params.Email == "" || params.Password == "" || params.Role == "" {
		return nil, ErrMissingFields
	}
	if len(params.Password) < MinPasswordLength {
		return nil, ErrPasswordTooWeak
	}
	if !params.Role.PublicRegistrable() {
		return nil, ErrInvalidRole
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}
	principal, err := s.repo.Create(ctx, identity.CreateParams{
		Email:        params.Email,
		PasswordHash: hash,
		FullName:     params.FullName,
		Role:         params.Role,
	})
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	return s.issue(principal, nil, uuid.Nil, true)
}

// Refresh mints a new access token from a refresh token. Live memberships are
// re-read so role changes since login propagate; the refresh token itself is
// not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	claims, err := s.codec.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	subjectID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	principal, err := s.repo.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !principal.IsActive {
		return nil, ErrUserNotFound
	}

	memberships, err := s.repo.ActiveMemberships(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	return s.issue(principal, memberships, defaultOrg(memberships), false)
}

// SwitchOrg reissues an access token with the requested org as current.
// Membership is checked against live rows, never against the caller's
// possibly stale token snapshot.
func (s *Service) SwitchOrg(ctx context.Context, principalID uuid.UUID, orgID string) (*Session, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, ErrMissingOrgID
	}
	target, err := uuid.Parse(orgID)
	if err != nil {
		return nil, ErrNotOrgMember
	}

	principal, err := s.repo.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	memberships, err := s.repo.ActiveMemberships(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	if _, ok := membershipFor(memberships, target); !ok {
		return nil, ErrNotOrgMember
	}
	return s.issue(principal, memberships, target, false)
}

// Me returns the live-recomputed view of a principal and its memberships.
func (s *Service) Me(ctx context.Context, principalID uuid.UUID) (*identity.Principal, []identity.Membership, error) {
	principal, err := s.repo.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}
	memberships, err := s.repo.ActiveMemberships(ctx, principalID)
	if err != nil {
		return nil, nil, err
	}
	return principal, memberships, nil
}

func (s *Service) issue(p *identity.Principal, memberships []identity.Membership, currentOrg uuid.UUID, withRefresh bool) (*Session, error) {
	access, err := s.codec.IssueAccessToken(p, memberships, currentOrg)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		Principal:   p,
		Memberships: memberships,
		CurrentOrg:  currentOrg,
		AccessToken: access,
	}
	if withRefresh {
		refresh, err := s.codec.IssueRefreshToken(p.ID)
		if err != nil {
			return nil, err
		}
		sess.RefreshToken = refresh
	}
	return sess, nil
}

func defaultOrg(memberships []identity.Membership) uuid.UUID {
	if len(memberships) == 0 {
		return uuid.Nil
	}
	// ActiveMemberships orders oldest first.
	return memberships[0].OrganizationID
}
