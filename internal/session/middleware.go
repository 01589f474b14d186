package session

import (
	"net/http"
	"strings"

	"github.com/brickfolio/brickfolio/internal/identity"
	"github.com/brickfolio/brickfolio/internal/platform/httpx"
)

// Middleware wires the ordered, short-circuiting authorization chain:
// token verification, authentication, system role, org context, org role.
// Each stage masks the ones after it. Org membership is read from the token
// snapshot only; no stage touches the database.
type Middleware struct {
	Codec *TokenCodec
}

// VerifyToken extracts and validates the bearer token, storing its claims in
// the request context.
func (m Middleware) VerifyToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.Problem(w, http.StatusUnauthorized, "TOKEN_MISSING", "authorization token required")
			return
		}
		claims, err := m.Codec.VerifyAccessToken(token)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "TOKEN_INVALID", "authorization token invalid or expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// RequireAuthenticated ensures verified claims are present in the context.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ClaimsFromContext(r.Context()) == nil {
			httpx.Problem(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole ensures the principal's system role is one of the allowed set.
func (m Middleware) RequireRole(allowed ...identity.SystemRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				httpx.Problem(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required")
				return
			}
			for _, role := range allowed {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "INSUFFICIENT_ROLE", "role not permitted")
		})
	}
}

// RequireOrgContext ensures the token carries a current organization.
func (m Middleware) RequireOrgContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			httpx.Problem(w, http.StatusUnauthorized, "AUTH_REQUIRED", "authentication required")
			return
		}
		if claims.CurrentOrg == "" {
			httpx.Problem(w, http.StatusForbidden, "ORG_CONTEXT_REQUIRED", "select an organization first")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOrgRole ensures the embedded org role for the current org is one of
// the allowed set.
func (m Middleware) RequireOrgRole(allowed ...identity.OrgRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil || claims.CurrentOrg == "" {
				httpx.Problem(w, http.StatusForbidden, "ORG_CONTEXT_REQUIRED", "select an organization first")
				return
			}
			role, ok := claims.OrgRole(claims.CurrentOrg)
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "NOT_ORG_MEMBER", "not a member of the current organization")
				return
			}
			for _, r2 := range allowed {
				if role == r2 {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "INSUFFICIENT_ORG_ROLE", "organization role not permitted")
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
