package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// URLSigner mints and verifies time-boxed capability URLs. The signature is
// HMAC-SHA256(secret, path+":"+expiryUnix); a capability is valid iff the
// signature recomputes identically and now has not passed the expiry. This is
// the only mechanism allowing bearer-free fetch of a private object, and the
// single codec is shared by the mint and serve paths.
type URLSigner struct {
	secret     []byte
	defaultTTL time.Duration
}

// NewURLSigner constructs a signer with the given secret and default TTL.
func NewURLSigner(secret string, defaultTTL time.Duration) *URLSigner {
	return &URLSigner{secret: []byte(secret), defaultTTL: defaultTTL}
}

// DefaultTTL exposes the configured default capability lifetime.
func (s *URLSigner) DefaultTTL() time.Duration { return s.defaultTTL }

// Capability is a signed grant for one path until one moment.
type Capability struct {
	Path      string
	Signature string
	Expires   int64
}

// Query renders the capability as URL query parameters.
func (c Capability) Query() string {
	values := url.Values{}
	values.Set("path", c.Path)
	values.Set("signature", c.Signature)
	values.Set("expires", strconv.FormatInt(c.Expires, 10))
	return values.Encode()
}

// Sign mints a capability for the path. A non-positive ttl falls back to the
// signer's default.
func (s *URLSigner) Sign(path string, ttl time.Duration) Capability {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expires := time.Now().Add(ttl).Unix()
	return Capability{
		Path:      path,
		Signature: s.compute(path, expires),
		Expires:   expires,
	}
}

// Verify reports whether the capability is intact and unexpired. The
// signature comparison is constant time.
func (s *URLSigner) Verify(path, signature string, expires int64) bool {
	if time.Now().Unix() > expires {
		return false
	}
	expected := s.compute(path, expires)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func (s *URLSigner) compute(path string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(path + ":" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
