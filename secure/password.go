package secure

import (
	"crypto/subtle"
	"strings"

	"github.com/dcavalli/fidelgate/internal/util"
)

// argonDigestPrefix marks digests produced by the hardened scheme. Digests
// without the prefix are legacy unsalted SHA-256 hex.
const argonDigestPrefix = "argon2id$"

// Hasher hashes and verifies passwords. Two digest schemes coexist:
//
//   - legacy: unsalted hex SHA-256 of the NFKD-normalized password. Kept for
//     behavioral compatibility with credentials already in the store.
//   - argon2id: salted, scheme-prefixed digests written when hardened mode
//     is enabled.
//
// Verify accepts both schemes regardless of mode, so existing credentials
// keep working after hardened hashing is turned on.
type Hasher struct {
	hardened bool
	params   util.Argon2idParams
}

// NewHasher creates a Hasher. When hardened is true, Hash emits argon2id
// digests; otherwise it emits legacy SHA-256 digests.
func NewHasher(hardened bool) *Hasher {
	return &Hasher{
		hardened: hardened,
		params:   util.DefaultArgon2idParams(),
	}
}

// Hash returns the digest of password, or "" for empty input or internal
// failure. Never panics or returns an error.
func (h *Hasher) Hash(password string) string {
	if password == "" {
		return ""
	}
	normalized := util.Normalize(password)
	if !h.hardened {
		return util.SHA256Hex([]byte(normalized))
	}

	salt, err := util.RandomBytes(16)
	if err != nil {
		return ""
	}
	key, err := util.DeriveArgon2idKey(normalized, salt, h.params)
	if err != nil {
		return ""
	}
	digest := argonDigestPrefix + util.Base64URLEncode(salt) + "$" + util.Base64URLEncode(key)
	util.WipeBytes(key)
	return digest
}

// Verify reports whether password matches digest. Returns false on empty
// input, malformed digests, or any internal error.
func (h *Hasher) Verify(password, digest string) bool {
	if password == "" || digest == "" {
		return false
	}
	normalized := util.Normalize(password)

	if rest, ok := strings.CutPrefix(digest, argonDigestPrefix); ok {
		parts := strings.SplitN(rest, "$", 2)
		if len(parts) != 2 {
			return false
		}
		salt, err := util.Base64URLDecode(parts[0])
		if err != nil {
			return false
		}
		expected, err := util.Base64URLDecode(parts[1])
		if err != nil {
			return false
		}
		params := h.params
		params.KeyLen = uint32(len(expected))
		match, err := util.CompareArgon2idKey(normalized, salt, params, expected)
		return err == nil && match
	}

	sum := util.SHA256Hex([]byte(normalized))
	return subtle.ConstantTimeCompare([]byte(sum), []byte(digest)) == 1
}
