package util

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSign computes the HMAC-SHA-256 of data under the given key.
func HMACSign(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// HMACEqual compares two MACs in constant time.
func HMACEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// SHA256Hex returns the hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return HexEncode(sum[:])
}
