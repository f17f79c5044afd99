package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// AESKeySize is the required length of the application key in bytes.
const AESKeySize = 32

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(key), AESKeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptAES seals plaintext with AES-256-GCM. The random nonce is prefixed
// to the returned blob.
func EncryptAES(plaintext, key []byte) ([]byte, error) {
	return EncryptAESWithAAD(plaintext, key, nil)
}

// EncryptAESWithAAD seals plaintext binding aad as associated data; opening
// the blob requires presenting the same aad.
func EncryptAESWithAAD(plaintext, key, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// DecryptAES opens a blob produced by EncryptAES.
func DecryptAES(sealed, key []byte) ([]byte, error) {
	return DecryptAESWithAAD(sealed, key, nil)
}

// DecryptAESWithAAD opens a blob produced by EncryptAESWithAAD under the
// same associated data.
func DecryptAESWithAAD(sealed, key, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce size")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}
	return plaintext, nil
}
