package storage

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/brickfolio/brickfolio/internal/identity"
	"github.com/brickfolio/brickfolio/internal/session"
)

type handlerFixture struct {
	router http.Handler
	codec  *session.TokenCodec
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	codec := session.NewTokenCodec("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	signer := NewURLSigner("url-secret", 15*time.Minute)
	gateway := NewGateway(NewRegistry(), signer, NewLocalStore(t.TempDir()), slog.Default())
	handler := NewHandler(slog.Default(), gateway, session.Middleware{Codec: codec})

	r := chi.NewRouter()
	r.Route("/storage", handler.MountRoutes)
	return &handlerFixture{router: r, codec: codec}
}

func (f *handlerFixture) token(t *testing.T, role identity.SystemRole, withOrg bool) string {
	t.Helper()
	principal := &identity.Principal{ID: uuid.New(), Email: "u@example.com", Role: role, IsActive: true}
	org := uuid.New()
	memberships := []identity.Membership{{PrincipalID: principal.ID, OrganizationID: org, Role: identity.OrgRoleOwner}}
	current := uuid.Nil
	if withOrg {
		current = org
	}
	token, err := f.codec.IssueAccessToken(principal, memberships, current)
	require.NoError(t, err)
	return token
}

func (f *handlerFixture) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func multipartUpload(t *testing.T, bucket, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("bucket", bucket))
	part, err := writer.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="` + filename + `"`},
		"Content-Type":        {contentType},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestBucketsEndpointFiltersByRole(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(httptest.NewRequest(http.MethodGet, "/storage/buckets", nil), f.token(t, identity.RoleInvestor, false))
	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Buckets []bucketView `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Len(t, body.Buckets, 3)

	res = f.do(httptest.NewRequest(http.MethodGet, "/storage/buckets", nil), "")
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestValidateEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.token(t, identity.RoleInvestor, true)

	body, _ := json.Marshal(map[string]any{
		"bucket": "property-images", "filename": "a.jpg", "size": 1024, "mimeType": "image/jpeg",
	})
	req := httptest.NewRequest(http.MethodPost, "/storage/validate", bytes.NewReader(body))
	res := f.do(req, token)
	require.Equal(t, http.StatusOK, res.Code)
	var out validateResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	require.True(t, out.Valid)
	require.NotEmpty(t, out.Path)

	body, _ = json.Marshal(map[string]any{
		"bucket": "property-images", "filename": "a.pdf", "size": 1024, "mimeType": "application/pdf",
	})
	res = f.do(httptest.NewRequest(http.MethodPost, "/storage/validate", bytes.NewReader(body)), token)
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	require.False(t, out.Valid)
	require.Equal(t, "UNSUPPORTED_TYPE", out.Code)

	// Org context is mandatory for the validating group.
	res = f.do(httptest.NewRequest(http.MethodPost, "/storage/validate", bytes.NewReader(body)), f.token(t, identity.RoleInvestor, false))
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Contains(t, res.Body.String(), "ORG_CONTEXT_REQUIRED")
}

func TestUploadThenFetchViaSignedURL(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.token(t, identity.RoleInvestor, true)
	content := []byte("jpeg bytes")

	buf, formType := multipartUpload(t, "property-images", "door.jpg", "image/jpeg", content)
	req := httptest.NewRequest(http.MethodPost, "/storage/upload", buf)
	req.Header.Set("Content-Type", formType)
	res := f.do(req, token)
	require.Equal(t, http.StatusCreated, res.Code)

	var uploaded struct {
		Path      string `json:"path"`
		SignedURL string `json:"signedUrl"`
		Size      int64  `json:"size"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &uploaded))
	require.Equal(t, int64(len(content)), uploaded.Size)

	// The signed URL works with no Authorization header at all.
	fetch := httptest.NewRequest(http.MethodGet, uploaded.SignedURL, nil)
	fetchRes := f.do(fetch, "")
	require.Equal(t, http.StatusOK, fetchRes.Code)
	got, err := io.ReadAll(fetchRes.Body)
	require.NoError(t, err)
	require.Equal(t, content, got)
	require.Equal(t, "private, max-age=3600", fetchRes.Header().Get("Cache-Control"))

	// Any tampering with the query forbids the fetch.
	tampered := httptest.NewRequest(http.MethodGet, uploaded.SignedURL+"0", nil)
	require.Equal(t, http.StatusForbidden, f.do(tampered, "").Code)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.token(t, identity.RoleInvestor, true)

	buf, formType := multipartUpload(t, "property-images", "big.jpg", "image/jpeg", make([]byte, (5<<20)+1))
	req := httptest.NewRequest(http.MethodPost, "/storage/upload", buf)
	req.Header.Set("Content-Type", formType)
	res := f.do(req, token)
	require.Equal(t, http.StatusRequestEntityTooLarge, res.Code)
	require.Contains(t, res.Body.String(), "FILE_TOO_LARGE")
}

func TestDeleteEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.token(t, identity.RoleInvestor, true)

	buf, formType := multipartUpload(t, "documents", "c.pdf", "application/pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/storage/upload", buf)
	req.Header.Set("Content-Type", formType)
	res := f.do(req, token)
	require.Equal(t, http.StatusCreated, res.Code)
	var uploaded struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &uploaded))

	// A different org's token cannot delete it.
	otherToken := f.token(t, identity.RoleInvestor, true)
	body, _ := json.Marshal(map[string]string{"path": uploaded.Path})
	res = f.do(httptest.NewRequest(http.MethodDelete, "/storage/delete", bytes.NewReader(body)), otherToken)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(httptest.NewRequest(http.MethodDelete, "/storage/delete", bytes.NewReader(body)), token)
	require.Equal(t, http.StatusNoContent, res.Code)

	res = f.do(httptest.NewRequest(http.MethodDelete, "/storage/delete", bytes.NewReader(body)), token)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestSignedURLEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.token(t, identity.RoleInvestor, true)

	// Mint for an own-org path.
	claims, err := f.codec.VerifyAccessToken(token)
	require.NoError(t, err)
	path := "private/documents/" + claims.CurrentOrg + "/contract.pdf"

	body, _ := json.Marshal(map[string]any{"path": path, "ttlSeconds": 60})
	res := f.do(httptest.NewRequest(http.MethodPost, "/storage/signed-url", bytes.NewReader(body)), token)
	require.Equal(t, http.StatusOK, res.Code)
	var out struct {
		SignedURL string `json:"signedUrl"`
		ExpiresIn int64  `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	require.Contains(t, out.SignedURL, FileEndpoint+"?")
	require.InDelta(t, 60, out.ExpiresIn, 2)

	// Foreign org path is refused.
	body, _ = json.Marshal(map[string]any{"path": "private/documents/other-org/contract.pdf"})
	res = f.do(httptest.NewRequest(http.MethodPost, "/storage/signed-url", bytes.NewReader(body)), token)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestFileEndpointRejectsMalformedQuery(t *testing.T) {
	f := newHandlerFixture(t)

	res := f.do(httptest.NewRequest(http.MethodGet, "/storage/file?path=x&signature=y", nil), "")
	require.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(httptest.NewRequest(http.MethodGet, "/storage/file?path=x&signature=y&expires=notanumber", nil), "")
	require.Equal(t, http.StatusForbidden, res.Code)
}
