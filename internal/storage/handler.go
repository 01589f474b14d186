package storage

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brickfolio/brickfolio/internal/identity"
	"github.com/brickfolio/brickfolio/internal/platform/httpx"
	"github.com/brickfolio/brickfolio/internal/session"
)

// FileEndpoint is the public capability-fetch route; signed URLs point here.
const FileEndpoint = "/storage/file"

// maxMultipartMemory bounds the in-memory part of multipart parsing; larger
// parts spill to disk.
const maxMultipartMemory = 8 << 20

// Handler wires HTTP endpoints for the storage gateway.
type Handler struct {
	logger    *slog.Logger
	gateway   *Gateway
	mw        session.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, gateway *Gateway, mw session.Middleware) *Handler {
	return &Handler{logger: logger, gateway: gateway, mw: mw, validator: validator.New()}
}

// MountRoutes registers storage routes on the provided router. The file
// route is deliberately outside the bearer chain: capability URLs are the
// only credential for direct fetches.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/file", h.handleFile)

	r.Group(func(r chi.Router) {
		r.Use(h.mw.VerifyToken, h.mw.RequireAuthenticated)
		r.Get("/buckets", h.handleBuckets)

		r.Group(func(r chi.Router) {
			r.Use(h.mw.RequireOrgContext)
			r.Post("/validate", h.handleValidate)
			r.Post("/upload", h.handleUpload)
			r.Delete("/delete", h.handleDelete)
			r.Post("/signed-url", h.handleSignedURL)
		})
	})
}

type bucketView struct {
	ID           string   `json:"id"`
	AllowedMimes []string `json:"allowedMimeTypes"`
	MaxFileSize  int64    `json:"maxFileSizeBytes"`
}

func (h *Handler) handleBuckets(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	policies := h.gateway.ListBuckets(actor)
	views := make([]bucketView, 0, len(policies))
	for _, p := range policies {
		views = append(views, bucketView{ID: p.ID, AllowedMimes: p.AllowedMimes, MaxFileSize: p.MaxFileSize})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"buckets": views})
}

type validateRequest struct {
	Bucket   string `json:"bucket" validate:"required"`
	Filename string `json:"filename" validate:"required"`
	Size     int64  `json:"size" validate:"required,gt=0"`
	MimeType string `json:"mimeType" validate:"required"`
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	Path   string `json:"path,omitempty"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "bucket, filename, size and mimeType are required")
		return
	}

	prospective, err := h.gateway.Validate(req.Bucket, req.Filename, req.Size, req.MimeType, actorFromRequest(r))
	if err != nil {
		code, reason := validationFailure(err)
		if code == "" {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, validateResponse{Valid: false, Code: code, Reason: reason})
		return
	}
	httpx.JSON(w, http.StatusOK, validateResponse{Valid: true, Path: prospective})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "multipart form expected")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "file part is required")
		return
	}
	defer file.Close()

	bucket := r.FormValue("bucket")
	if bucket == "" {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "bucket is required")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(header.Filename)); byExt != "" {
			mimeType = byExt
		}
	}

	result, err := h.gateway.Upload(r.Context(), UploadInput{
		Bucket:     bucket,
		EntityType: r.FormValue("entityType"),
		EntityID:   r.FormValue("entityId"),
		Filename:   header.Filename,
		MimeType:   mimeType,
		Size:       header.Size,
		Body:       file,
	}, actorFromRequest(r))
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, map[string]any{
		"path":         result.Path,
		"signedUrl":    result.SignedURL,
		"originalName": result.OriginalName,
		"size":         result.Size,
		"mimeType":     result.MimeType,
	})
}

type deleteRequest struct {
	Path string `json:"path" validate:"required"`
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "path is required")
		return
	}
	if err := h.gateway.Delete(r.Context(), req.Path, actorFromRequest(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signURLRequest struct {
	Path       string `json:"path" validate:"required"`
	TTLSeconds int64  `json:"ttlSeconds" validate:"omitempty,gt=0"`
}

func (h *Handler) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	var req signURLRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "path is required")
		return
	}

	capability, err := h.gateway.SignURL(req.Path, time.Duration(req.TTLSeconds)*time.Second, actorFromRequest(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"signedUrl": FileEndpoint + "?" + capability.Query(),
		"expiresIn": capability.Expires - time.Now().Unix(),
	})
}

func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusForbidden, "FORBIDDEN", "link invalid or expired")
		return
	}

	reader, contentType, err := h.gateway.Serve(r.Context(), query.Get("path"), query.Get("signature"), expires)
	if err != nil {
		h.respondError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("stream file", slog.Any("error", err))
	}
}

func actorFromRequest(r *http.Request) Actor {
	claims := session.ClaimsFromContext(r.Context())
	if claims == nil {
		return Actor{Role: identity.RolePublic}
	}
	return Actor{Role: claims.Role, OrgID: claims.CurrentOrg}
}

func validationFailure(err error) (code, reason string) {
	switch {
	case errors.Is(err, ErrUnknownBucket):
		return "INVALID_BUCKET", "bucket does not exist"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN", "role not permitted for bucket"
	case errors.Is(err, ErrFileTooLarge):
		return "FILE_TOO_LARGE", "file exceeds the bucket size limit"
	case errors.Is(err, ErrUnsupportedType):
		return "UNSUPPORTED_TYPE", "content type not allowed for bucket"
	}
	return "", ""
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownBucket):
		httpx.Problem(w, http.StatusBadRequest, "INVALID_BUCKET", "bucket does not exist")
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "FORBIDDEN", "operation not permitted")
	case errors.Is(err, ErrFileTooLarge):
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds the bucket size limit")
	case errors.Is(err, ErrUnsupportedType):
		httpx.Problem(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE", "content type not allowed for bucket")
	case errors.Is(err, ErrBadCapability):
		httpx.Problem(w, http.StatusForbidden, "FORBIDDEN", "link invalid or expired")
	case errors.Is(err, ErrInvalidPathSegment):
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid path")
	case errors.Is(err, ErrObjectNotFound):
		httpx.Problem(w, http.StatusNotFound, "NOT_FOUND", "object not found")
	default:
		h.logger.Error("storage handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "INTERNAL", "")
	}
}
