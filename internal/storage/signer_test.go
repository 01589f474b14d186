package storage

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := NewURLSigner("url-secret", 15*time.Minute)
	capability := signer.Sign("private/documents/org-1/file.pdf", 0)

	require.True(t, signer.Verify(capability.Path, capability.Signature, capability.Expires))
	require.Greater(t, capability.Expires, time.Now().Unix())
}

func TestVerifyFailsAfterExpiry(t *testing.T) {
	// A negative default TTL yields an already-expired capability whose
	// signature is nonetheless genuine.
	signer := NewURLSigner("url-secret", -time.Second)
	capability := signer.Sign("private/documents/org-1/file.pdf", 0)

	fresh := NewURLSigner("url-secret", 15*time.Minute)
	require.False(t, fresh.Verify(capability.Path, capability.Signature, capability.Expires))
}

func TestVerifyRejectsAnySingleCharacterChange(t *testing.T) {
	signer := NewURLSigner("url-secret", 15*time.Minute)
	capability := signer.Sign("private/documents/org-1/file.pdf", 0)

	tamperedPath := "private/documents/org-2/file.pdf"
	require.False(t, signer.Verify(tamperedPath, capability.Signature, capability.Expires))

	sig := []byte(capability.Signature)
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	require.False(t, signer.Verify(capability.Path, string(sig), capability.Expires))

	require.False(t, signer.Verify(capability.Path, capability.Signature, capability.Expires+1))
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	signer := NewURLSigner("url-secret", 15*time.Minute)
	other := NewURLSigner("other-secret", 15*time.Minute)
	capability := other.Sign("private/documents/org-1/file.pdf", 0)

	require.False(t, signer.Verify(capability.Path, capability.Signature, capability.Expires))
}

func TestCapabilityQueryEncoding(t *testing.T) {
	signer := NewURLSigner("url-secret", 15*time.Minute)
	capability := signer.Sign("private/avatars/org-1/a b.png", time.Minute)

	query := capability.Query()
	require.Contains(t, query, "path=private%2Favatars%2Forg-1%2Fa+b.png")
	require.Contains(t, query, "signature="+capability.Signature)
	require.Contains(t, query, "expires="+strconv.FormatInt(capability.Expires, 10))
}

func TestSignHonorsExplicitTTL(t *testing.T) {
	signer := NewURLSigner("url-secret", 15*time.Minute)
	capability := signer.Sign("private/documents/org-1/file.pdf", time.Hour)

	expected := time.Now().Add(time.Hour).Unix()
	require.InDelta(t, expected, capability.Expires, 2)
}
