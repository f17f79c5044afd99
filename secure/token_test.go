package secure

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService(newTestCipher(t))

	token, err := svc.Issue("cust-42", RoleCustomer, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	claims := svc.Verify(token)
	require.NotNil(t, claims)
	assert.Equal(t, "cust-42", claims.ID)
	assert.Equal(t, RoleCustomer, claims.Role)
	assert.Greater(t, claims.IssuedAt, int64(0))
	assert.Equal(t, claims.IssuedAt+(30*time.Minute).Milliseconds(), claims.ExpiresAt)
}

func TestTokenService_AdminRole(t *testing.T) {
	svc := NewTokenService(newTestCipher(t))

	token, err := svc.Issue("admin", RoleAdmin, time.Minute)
	require.NoError(t, err)

	claims := svc.Verify(token)
	require.NotNil(t, claims)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestTokenService_ExpiredTokenRejected(t *testing.T) {
	svc := NewTokenService(newTestCipher(t))

	token, err := svc.Issue("cust-42", RoleCustomer, -1*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, svc.Verify(token))
}

func TestTokenService_TamperedPayloadRejected(t *testing.T) {
	svc := NewTokenService(newTestCipher(t))

	token, err := svc.Issue("cust-42", RoleCustomer, 30*time.Minute)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// Flipping any character of the payload must invalidate the signature.
	payload := []byte(parts[1])
	for i := range payload {
		mutated := append([]byte(nil), payload...)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}
		tampered := parts[0] + "." + string(mutated) + "." + parts[2]
		assert.Nil(t, svc.Verify(tampered), "flipped payload character %d", i)
	}
}

func TestTokenService_TamperedSignatureRejected(t *testing.T) {
	svc := NewTokenService(newTestCipher(t))

	token, err := svc.Issue("cust-42", RoleCustomer, 30*time.Minute)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	assert.Nil(t, svc.Verify(parts[0]+"."+parts[1]+"."+strings.Repeat("0", len(parts[2]))))
}

func TestTokenService_MalformedTokenRejected(t *testing.T) {
	svc := NewTokenService(newTestCipher(t))

	for _, bad := range []string{"", "one", "one.two", "one.two.three.four", "...", "a.b.c"} {
		assert.Nil(t, svc.Verify(bad), "token %q", bad)
	}
}

func TestTokenService_ForeignKeyRejected(t *testing.T) {
	svc := NewTokenService(newTestCipher(t))
	other, err := NewCipher([]byte("fedcba9876543210fedcba9876543210"), testLogger())
	require.NoError(t, err)
	otherSvc := NewTokenService(other)

	token, err := otherSvc.Issue("cust-42", RoleCustomer, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, svc.Verify(token))
}
