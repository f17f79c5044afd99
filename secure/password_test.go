package secure

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_LegacyScheme(t *testing.T) {
	h := NewHasher(false)

	digest := h.Hash("tessera123")
	require.NotEmpty(t, digest)
	// Unsalted SHA-256 is deterministic.
	assert.Equal(t, digest, h.Hash("tessera123"))
	assert.Len(t, digest, 64)

	assert.True(t, h.Verify("tessera123", digest))
	assert.False(t, h.Verify("tessera124", digest))
	assert.False(t, h.Verify("tessera123", h.Hash("tessera123x")))
}

func TestHasher_HardenedScheme(t *testing.T) {
	h := NewHasher(true)

	digest := h.Hash("tessera123")
	require.NotEmpty(t, digest)
	assert.True(t, strings.HasPrefix(digest, "argon2id$"))
	// Salted digests differ between calls but both verify.
	other := h.Hash("tessera123")
	assert.NotEqual(t, digest, other)

	assert.True(t, h.Verify("tessera123", digest))
	assert.True(t, h.Verify("tessera123", other))
	assert.False(t, h.Verify("wrong", digest))
}

func TestHasher_VerifiesLegacyInHardenedMode(t *testing.T) {
	legacy := NewHasher(false)
	hardened := NewHasher(true)

	digest := legacy.Hash("tessera123")
	assert.True(t, hardened.Verify("tessera123", digest),
		"hardened hasher must keep verifying legacy digests")
}

func TestHasher_EmptyInput(t *testing.T) {
	h := NewHasher(false)

	assert.Empty(t, h.Hash(""))
	assert.False(t, h.Verify("", h.Hash("pw")))
	assert.False(t, h.Verify("pw", ""))
}

func TestHasher_MalformedDigest(t *testing.T) {
	h := NewHasher(true)

	assert.False(t, h.Verify("pw", "argon2id$not-valid"))
	assert.False(t, h.Verify("pw", "argon2id$!!$!!"))
}
