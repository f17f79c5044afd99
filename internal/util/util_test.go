package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAES(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, AESKeySize)
	plaintext := []byte("hello world")
	aad := []byte("sessions/cust-1")

	t.Run("EncryptDecryptWithAAD", func(t *testing.T) {
		sealed, err := EncryptAESWithAAD(plaintext, key, aad)
		require.NoError(t, err)

		decrypted, err := DecryptAESWithAAD(sealed, key, aad)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})

	t.Run("TamperAAD", func(t *testing.T) {
		sealed, err := EncryptAESWithAAD(plaintext, key, aad)
		require.NoError(t, err)

		_, err = DecryptAESWithAAD(sealed, key, []byte("sessions/cust-2"))
		assert.Error(t, err)
	})

	t.Run("TamperCiphertext", func(t *testing.T) {
		sealed, err := EncryptAESWithAAD(plaintext, key, aad)
		require.NoError(t, err)

		sealed[len(sealed)-1] ^= 0xFF
		_, err = DecryptAESWithAAD(sealed, key, aad)
		assert.Error(t, err)
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		_, err := EncryptAESWithAAD(plaintext, []byte("too short"), aad)
		assert.Error(t, err)

		_, err = DecryptAESWithAAD(plaintext, []byte("too short"), aad)
		assert.Error(t, err)
	})

	t.Run("EncryptDecryptNoAAD", func(t *testing.T) {
		sealed, err := EncryptAES(plaintext, key)
		require.NoError(t, err)

		decrypted, err := DecryptAES(sealed, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	})
}

func TestHMAC(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	t.Run("Deterministic", func(t *testing.T) {
		a := HMACSign([]byte("payload"), key)
		b := HMACSign([]byte("payload"), key)
		assert.True(t, HMACEqual(a, b))
	})

	t.Run("KeyDependent", func(t *testing.T) {
		a := HMACSign([]byte("payload"), key)
		b := HMACSign([]byte("payload"), []byte("fedcba9876543210fedcba9876543210"))
		assert.False(t, HMACEqual(a, b))
	})

	t.Run("DataDependent", func(t *testing.T) {
		a := HMACSign([]byte("payload"), key)
		b := HMACSign([]byte("payloae"), key)
		assert.False(t, HMACEqual(a, b))
	})
}

func TestRandomChars(t *testing.T) {
	s, err := RandomChars(16)
	require.NoError(t, err)
	assert.Len(t, s, 16)

	other, err := RandomChars(16)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}

func TestBase64URLRoundTrip(t *testing.T) {
	data := []byte(`{"id":"cust-1","role":"customer"}`)
	decoded, err := Base64URLDecode(Base64URLEncode(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeBytes(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}

func TestArgon2id(t *testing.T) {
	params := DefaultArgon2idParams()
	salt := []byte("0123456789abcdef")

	key, err := DeriveArgon2idKey("correct horse", salt, params)
	require.NoError(t, err)

	ok, err := CompareArgon2idKey("correct horse", salt, params, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CompareArgon2idKey("wrong horse", salt, params, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
