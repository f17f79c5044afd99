// Package secure implements the security core of the loyalty service:
// symmetric encryption of stored secrets, password hashing, session token
// issuance and verification, CSRF protection, rate limiting, lockout
// handling, and the session authority that gates customer and admin views.
package secure

import (
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"

	"github.com/dcavalli/fidelgate/internal/util"
)

// Cipher wraps the application-wide symmetric key. The key is held in a
// memguard enclave and only materialized for the duration of each operation.
//
// All methods are total: failures degrade to an empty string and are logged
// at debug level. Callers must treat an empty result as "absent/invalid",
// never as a legitimate empty value.
type Cipher struct {
	key    *memguard.Enclave
	logger *slog.Logger
}

// NewCipher creates a Cipher from a 32-byte AES key. The caller's key slice
// is copied; the copy is wiped when sealed into the enclave.
func NewCipher(key []byte, logger *slog.Logger) (*Cipher, error) {
	if len(key) != util.AESKeySize {
		return nil, fmt.Errorf("cipher key must be exactly %d bytes, got %d", util.AESKeySize, len(key))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cipher{
		key:    memguard.NewEnclave(util.CopyBytes(key)),
		logger: logger.With("component", "cipher"),
	}, nil
}

// Encrypt seals plaintext with AES-256-GCM and returns a base64url-encoded
// blob. Returns "" on empty input or any internal failure.
func (c *Cipher) Encrypt(plaintext string) string {
	return c.seal(plaintext, nil)
}

// Decrypt is the inverse of Encrypt. Returns "" if the blob is malformed,
// was sealed under a different key, or has been tampered with.
func (c *Cipher) Decrypt(ciphertext string) string {
	return c.open(ciphertext, nil)
}

// EncryptBound seals plaintext with the record's storage slot as GCM
// associated data. A blob copied into a different slot will not open, so
// an attacker with store access cannot replay one record as another.
func (c *Cipher) EncryptBound(plaintext, slot string) string {
	return c.seal(plaintext, []byte(slot))
}

// DecryptBound is the inverse of EncryptBound for the same slot.
func (c *Cipher) DecryptBound(ciphertext, slot string) string {
	return c.open(ciphertext, []byte(slot))
}

func (c *Cipher) seal(plaintext string, aad []byte) string {
	if plaintext == "" {
		return ""
	}
	buf, err := c.key.Open()
	if err != nil {
		c.logger.Debug("opening key enclave failed", "err", err)
		return ""
	}
	defer buf.Destroy()

	sealed, err := util.EncryptAESWithAAD([]byte(plaintext), buf.Bytes(), aad)
	if err != nil {
		c.logger.Debug("encrypt failed", "err", err)
		return ""
	}
	return util.Base64URLEncode(sealed)
}

func (c *Cipher) open(ciphertext string, aad []byte) string {
	if ciphertext == "" {
		return ""
	}
	sealed, err := util.Base64URLDecode(ciphertext)
	if err != nil {
		c.logger.Debug("decoding ciphertext failed", "err", err)
		return ""
	}
	buf, err := c.key.Open()
	if err != nil {
		c.logger.Debug("opening key enclave failed", "err", err)
		return ""
	}
	defer buf.Destroy()

	plaintext, err := util.DecryptAESWithAAD(sealed, buf.Bytes(), aad)
	if err != nil {
		c.logger.Debug("decrypt failed", "err", err)
		return ""
	}
	return string(plaintext)
}

// Sign returns the hex-encoded HMAC-SHA-256 of data under the application
// key. Returns "" on internal failure.
func (c *Cipher) Sign(data string) string {
	buf, err := c.key.Open()
	if err != nil {
		c.logger.Debug("opening key enclave failed", "err", err)
		return ""
	}
	defer buf.Destroy()
	return util.HexEncode(util.HMACSign([]byte(data), buf.Bytes()))
}
