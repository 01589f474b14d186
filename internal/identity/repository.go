package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for principals and memberships.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	Create(ctx context.Context, p CreateParams) (*Principal, error)
	ActiveMemberships(ctx context.Context, principalID uuid.UUID) ([]Membership, error)
	StampLastLogin(ctx context.Context, id uuid.UUID) error
}

// CreateParams carries the fields required to insert a principal.
type CreateParams struct {
	Email        string
	PasswordHash string
	FullName     string
	Role         SystemRole
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const principalColumns = `id, email, password_hash, full_name, role, is_active, last_login_at, created_at, updated_at`

func (r *PGRepository) scanPrincipal(row pgx.Row) (*Principal, error) {
	var p Principal
	var role string
	if err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FullName, &role, &p.IsActive, &p.LastLoginAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Role = SystemRole(role)
	return &p, nil
}

// FindByEmail fetches a principal by its normalized email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email))
	return r.scanPrincipal(row)
}

// FindByID fetches a principal by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return r.scanPrincipal(row)
}

// Create inserts a new principal. A unique violation on email maps to
// ErrDuplicateEmail.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Principal, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx,
		`INSERT INTO principals (id, email, password_hash, full_name, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
		 RETURNING `+principalColumns,
		uuid.New(), strings.ToLower(strings.TrimSpace(params.Email)), params.PasswordHash,
		params.FullName, string(params.Role), now)
	p, err := r.scanPrincipal(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return p, nil
}

// ActiveMemberships returns the principal's active memberships in active
// organizations, oldest first. The ordering is load-bearing: the first row is
// the default current org after login.
func (r *PGRepository) ActiveMemberships(ctx context.Context, principalID uuid.UUID) ([]Membership, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.principal_id, m.organization_id, o.name, o.slug, m.role, m.status, m.created_at
		 FROM memberships m
		 JOIN organizations o ON o.id = m.organization_id
		 WHERE m.principal_id = $1 AND m.status = 'active' AND o.is_active
		 ORDER BY m.created_at ASC`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var m Membership
		var role, status string
		if err := rows.Scan(&m.PrincipalID, &m.OrganizationID, &m.OrgName, &m.OrgSlug, &role, &status, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = OrgRole(role)
		m.Status = MembershipStatus(status)
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// StampLastLogin records the login moment on the principal row.
func (r *PGRepository) StampLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE principals SET last_login_at = now(), updated_at = now() WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
