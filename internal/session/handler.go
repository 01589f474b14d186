package session

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/brickfolio/brickfolio/internal/identity"
	"github.com/brickfolio/brickfolio/internal/platform/httpx"
)

const refreshCookieName = "brickfolio_refresh"

// Handler wires HTTP endpoints for session flows.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	middleware   Middleware
	limiter      *LoginLimiter
	validator    *validator.Validate
	secureCookie bool
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware, limiter *LoginLimiter, secureCookie bool) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		middleware:   mw,
		limiter:      limiter,
		validator:    validator.New(),
		secureCookie: secureCookie,
	}
}

// MountRoutes registers session routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Handler)
		}
		r.Post("/login", h.handleLogin)
		r.Post("/register", h.handleRegister)
	})
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.middleware.VerifyToken, h.middleware.RequireAuthenticated)
		r.Get("/me", h.handleMe)
		r.Post("/switch-org", h.handleSwitchOrg)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"fullName"`
	Role     string `json:"role" validate:"required"`
}

type switchOrgRequest struct {
	OrganizationID string `json:"organizationId"`
}

type orgView struct {
	ID   string           `json:"id"`
	Name string           `json:"name,omitempty"`
	Slug string           `json:"slug,omitempty"`
	Role identity.OrgRole `json:"role"`
}

type principalView struct {
	ID            string              `json:"id"`
	Email         string              `json:"email"`
	FullName      string              `json:"fullName,omitempty"`
	Role          identity.SystemRole `json:"role"`
	CurrentOrg    string              `json:"currentOrganizationId,omitempty"`
	Organizations []orgView           `json:"organizations"`
	LastLoginAt   *time.Time          `json:"lastLoginAt,omitempty"`
}

type sessionResponse struct {
	Principal   principalView `json:"principal"`
	AccessToken string        `json:"accessToken"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "MISSING_FIELDS", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		// Validation detail is withheld on purpose; login failures stay uniform.
		httpx.Problem(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
		return
	}

	sess, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.setRefreshCookie(w, sess.RefreshToken)
	httpx.JSON(w, http.StatusOK, h.sessionResponse(sess))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "MISSING_FIELDS", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "MISSING_FIELDS", "email, password and role are required")
		return
	}

	sess, err := h.service.Register(r.Context(), RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     identity.SystemRole(req.Role),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.setRefreshCookie(w, sess.RefreshToken)
	httpx.JSON(w, http.StatusCreated, h.sessionResponse(sess))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "NO_REFRESH_TOKEN", "refresh token required")
		return
	}
	sess, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.respondError(w, err)
		return
	}
	// The refresh token is not rotated; only a new access token goes out.
	httpx.JSON(w, http.StatusOK, h.sessionResponse(sess))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	principalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "TOKEN_INVALID", "authorization token invalid or expired")
		return
	}
	principal, memberships, err := h.service.Me(r.Context(), principalID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, principalViewOf(principal, memberships, claims.CurrentOrg))
}

func (h *Handler) handleSwitchOrg(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	principalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "TOKEN_INVALID", "authorization token invalid or expired")
		return
	}

	var req switchOrgRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "MISSING_ORG_ID", "organizationId is required")
		return
	}
	sess, err := h.service.SwitchOrg(r.Context(), principalID, req.OrganizationID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.sessionResponse(sess))
}

func (h *Handler) sessionResponse(sess *Session) sessionResponse {
	currentOrg := ""
	if sess.CurrentOrg != uuid.Nil {
		currentOrg = sess.CurrentOrg.String()
	}
	return sessionResponse{
		Principal:   principalViewOf(sess.Principal, sess.Memberships, currentOrg),
		AccessToken: sess.AccessToken,
	}
}

func principalViewOf(p *identity.Principal, memberships []identity.Membership, currentOrg string) principalView {
	orgs := make([]orgView, 0, len(memberships))
	for _, m := range memberships {
		orgs = append(orgs, orgView{
			ID:   m.OrganizationID.String(),
			Name: m.OrgName,
			Slug: m.OrgSlug,
			Role: m.Role,
		})
	}
	return principalView{
		ID:            p.ID.String(),
		Email:         p.Email,
		FullName:      p.FullName,
		Role:          p.Role,
		CurrentOrg:    currentOrg,
		Organizations: orgs,
		LastLoginAt:   p.LastLoginAt,
	}
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/session",
		MaxAge:   int(h.service.codec.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/session",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	case errors.Is(err, ErrMissingFields):
		httpx.Problem(w, http.StatusBadRequest, "MISSING_FIELDS", "email, password and role are required")
	case errors.Is(err, ErrPasswordTooWeak):
		httpx.Problem(w, http.StatusBadRequest, "PASSWORD_TOO_WEAK", "password must be at least 6 characters")
	case errors.Is(err, ErrInvalidRole):
		httpx.Problem(w, http.StatusBadRequest, "INVALID_ROLE", "role not allowed for registration")
	case errors.Is(err, ErrUserExists):
		httpx.Problem(w, http.StatusConflict, "USER_EXISTS", "an account with this email already exists")
	case errors.Is(err, ErrNoRefreshToken):
		httpx.Problem(w, http.StatusUnauthorized, "NO_REFRESH_TOKEN", "refresh token required")
	case errors.Is(err, ErrInvalidToken):
		httpx.Problem(w, http.StatusUnauthorized, "TOKEN_INVALID", "authorization token invalid or expired")
	case errors.Is(err, ErrUserNotFound):
		httpx.Problem(w, http.StatusUnauthorized, "USER_NOT_FOUND", "account no longer available")
	case errors.Is(err, ErrMissingOrgID):
		httpx.Problem(w, http.StatusBadRequest, "MISSING_ORG_ID", "organizationId is required")
	case errors.Is(err, ErrNotOrgMember):
		httpx.Problem(w, http.StatusForbidden, "NOT_ORG_MEMBER", "not a member of the requested organization")
	default:
		h.logger.Error("session handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "INTERNAL", "")
	}
}
