package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/brickfolio/brickfolio/internal/identity"
)

// Sentinel errors for gateway operations.
var (
	ErrForbidden       = errors.New("storage: forbidden")
	ErrFileTooLarge    = errors.New("storage: file too large")
	ErrUnsupportedType = errors.New("storage: unsupported content type")
	// ErrBadCapability covers a missing, malformed, tampered and expired
	// capability alike; serving never reveals which check failed.
	ErrBadCapability = errors.New("storage: invalid or expired link")
)

// Actor is the storage-relevant slice of a verified access token: the system
// role and the current organization scoping every mutating operation.
type Actor struct {
	Role  identity.SystemRole
	OrgID string
}

// UploadInput describes one incoming file.
type UploadInput struct {
	Bucket     string
	EntityType string
	EntityID   string
	Filename   string
	MimeType   string
	Size       int64
	Body       io.Reader
}

// UploadResult is returned to the uploader.
type UploadResult struct {
	Path         string
	SignedURL    string
	OriginalName string
	Size         int64
	MimeType     string
}

// Gateway validates bucket policy, moves bytes through the blob store and
// mints capability URLs.
type Gateway struct {
	registry *Registry
	signer   *URLSigner
	store    BlobStore
	logger   *slog.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(registry *Registry, signer *URLSigner, store BlobStore, logger *slog.Logger) *Gateway {
	return &Gateway{registry: registry, signer: signer, store: store, logger: logger}
}

// ListBuckets returns the buckets visible to the actor's role.
func (g *Gateway) ListBuckets(actor Actor) []BucketPolicy {
	return g.registry.VisibleTo(actor.Role)
}

// Validate checks an upload against the bucket policy and returns the
// prospective scoped path without writing anything. Checks run in a fixed
// order; the first failure wins.
func (g *Gateway) Validate(bucket, filename string, size int64, mimeType string, actor Actor) (string, error) {
	policy, err := g.registry.Resolve(bucket)
	if err != nil {
		return "", err
	}
	if !policy.AllowsRole(actor.Role) {
		return "", ErrForbidden
	}
	if size > policy.MaxFileSize {
		return "", ErrFileTooLarge
	}
	if !policy.AllowsMime(mimeType) {
		return "", ErrUnsupportedType
	}
	return ScopedPath(policy, actor.OrgID, "", "", sanitizeFilename(filename))
}

// Upload re-validates independently of any prior Validate call, stores the
// bytes under a server-generated collision-free name and returns the path
// with a capability URL for immediate use.
func (g *Gateway) Upload(ctx context.Context, in UploadInput, actor Actor) (*UploadResult, error) {
	policy, err := g.registry.Resolve(in.Bucket)
	if err != nil {
		return nil, err
	}
	if !policy.AllowsRole(actor.Role) {
		return nil, ErrForbidden
	}
	if in.Size > policy.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	if !policy.AllowsMime(in.MimeType) {
		return nil, ErrUnsupportedType
	}

	name := uuid.NewString() + extensionOf(in.Filename)
	objectPath, err := ScopedPath(policy, actor.OrgID, in.EntityType, in.EntityID, name)
	if err != nil {
		return nil, err
	}

	// Cap the stream at the declared size; a client lying about Size cannot
	// push past the bucket limit.
	written, err := g.store.Write(ctx, objectPath, io.LimitReader(in.Body, policy.MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if written > policy.MaxFileSize {
		if delErr := g.store.Delete(ctx, objectPath); delErr != nil {
			g.logger.Warn("remove oversized upload", slog.String("path", objectPath), slog.Any("error", delErr))
		}
		return nil, ErrFileTooLarge
	}

	capability := g.signer.Sign(objectPath, 0)
	return &UploadResult{
		Path:         objectPath,
		SignedURL:    FileEndpoint + "?" + capability.Query(),
		OriginalName: in.Filename,
		Size:         written,
		MimeType:     in.MimeType,
	}, nil
}

// SignURL mints a capability for an already stored object owned by the
// actor's current organization.
func (g *Gateway) SignURL(objectPath string, ttl time.Duration, actor Actor) (Capability, error) {
	org, ok := OrgSegment(objectPath)
	if !ok {
		return Capability{}, ErrForbidden
	}
	if org != actor.OrgID && actor.Role != identity.RoleAdmin {
		return Capability{}, ErrForbidden
	}
	return g.signer.Sign(objectPath, ttl), nil
}

// Delete removes a stored object. The path's org segment must equal the
// actor's current organization.
func (g *Gateway) Delete(ctx context.Context, objectPath string, actor Actor) error {
	org, ok := OrgSegment(objectPath)
	if !ok {
		return ErrForbidden
	}
	if org != actor.OrgID && actor.Role != identity.RoleAdmin {
		return ErrForbidden
	}
	return g.store.Delete(ctx, objectPath)
}

// Serve opens a stored object for an unauthenticated, capability-bearing
// fetch. Signature and expiry failures collapse into ErrBadCapability.
func (g *Gateway) Serve(ctx context.Context, objectPath, signature string, expires int64) (io.ReadCloser, string, error) {
	if objectPath == "" || signature == "" {
		return nil, "", ErrBadCapability
	}
	if _, ok := OrgSegment(objectPath); !ok {
		return nil, "", ErrBadCapability
	}
	if !g.signer.Verify(objectPath, signature, expires) {
		return nil, "", ErrBadCapability
	}
	reader, err := g.store.Open(ctx, objectPath)
	if err != nil {
		return nil, "", err
	}
	contentType := mime.TypeByExtension(path.Ext(objectPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return reader, contentType, nil
}

// extensionOf pulls a lowercase extension from a client filename, NFC
// normalized first (macOS sends NFD names).
func extensionOf(filename string) string {
	ext := strings.ToLower(path.Ext(norm.NFC.String(filename)))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\\x00") {
		return ""
	}
	return ext
}

// sanitizeFilename keeps the base name only, NFC normalized.
func sanitizeFilename(filename string) string {
	return path.Base(norm.NFC.String(strings.ReplaceAll(filename, "\\", "/")))
}
