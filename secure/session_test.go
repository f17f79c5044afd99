package secure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcavalli/fidelgate/store/memory"
)

func newTestAuthority(t *testing.T) (*SessionAuthority, *captureSink) {
	t.Helper()
	cipher := newTestCipher(t)
	sink := &captureSink{}
	auth := NewSessionAuthority(NewTokenService(cipher), cipher, memory.New(), sink, 30*time.Minute, testLogger())
	return auth, sink
}

func TestSessionAuthority_AuthenticateCustomer(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	token, err := auth.AuthenticateCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.True(t, auth.IsAuthenticated(ctx, "cust-1"))
	assert.False(t, auth.IsAdmin(ctx, "cust-1"))
}

func TestSessionAuthority_AuthenticateAdmin(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	_, err := auth.AuthenticateAdmin(ctx, "admin")
	require.NoError(t, err)

	assert.True(t, auth.IsAuthenticated(ctx, "admin"))
	assert.True(t, auth.IsAdmin(ctx, "admin"))
}

func TestSessionAuthority_UnknownSubject(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	assert.False(t, auth.IsAuthenticated(ctx, "nobody"))
	assert.False(t, auth.IsAdmin(ctx, "nobody"))
	assert.Nil(t, auth.CurrentIdentity(ctx, "nobody"))
}

func TestSessionAuthority_SlidingExpiry(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	now := time.Now()
	auth.now = func() time.Time { return now }
	auth.tokens.now = func() time.Time { return now }

	_, err := auth.AuthenticateCustomer(ctx, "cust-1")
	require.NoError(t, err)

	// Polling inside the TTL keeps the session alive indefinitely.
	for i := 0; i < 10; i++ {
		now = now.Add(20 * time.Minute)
		assert.True(t, auth.IsAuthenticated(ctx, "cust-1"), "poll %d within TTL", i)
	}

	// A gap longer than the TTL expires the session and clears it.
	now = now.Add(31 * time.Minute)
	assert.False(t, auth.IsAuthenticated(ctx, "cust-1"))
	// Cleared: even rolling the clock back does not revive it.
	now = now.Add(-31 * time.Minute)
	assert.False(t, auth.IsAuthenticated(ctx, "cust-1"))
}

func TestSessionAuthority_PollingOutlivesTokenDeadline(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	now := time.Now()
	auth.now = func() time.Time { return now }
	auth.tokens.now = func() time.Time { return now }

	token, err := auth.AuthenticateCustomer(ctx, "cust-1")
	require.NoError(t, err)

	// Two hours of 20-minute polls: the session must stay alive well past
	// the 30-minute deadline embedded in the token at issue time.
	for i := 1; i <= 6; i++ {
		now = now.Add(20 * time.Minute)
		require.True(t, auth.IsAuthenticated(ctx, "cust-1"),
			"poll %d at +%dm must stay authenticated", i, i*20)
	}

	// The raw token presented from outside is bounded by its own expiry.
	assert.Nil(t, auth.tokens.Verify(token))
	// The admin check honors the slid record deadline too: at +40m the
	// embedded token deadline has passed but the refreshed record has not.
	_, err = auth.AuthenticateAdmin(ctx, "admin")
	require.NoError(t, err)
	now = now.Add(20 * time.Minute)
	require.True(t, auth.IsAuthenticated(ctx, "admin"))
	now = now.Add(20 * time.Minute)
	assert.True(t, auth.IsAdmin(ctx, "admin"))
}

func TestSessionAuthority_IsAdminDoesNotRefresh(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	now := time.Now()
	auth.now = func() time.Time { return now }
	auth.tokens.now = func() time.Time { return now }

	_, err := auth.AuthenticateAdmin(ctx, "admin")
	require.NoError(t, err)

	// Repeated IsAdmin checks do not slide the window.
	now = now.Add(20 * time.Minute)
	require.True(t, auth.IsAdmin(ctx, "admin"))
	now = now.Add(20 * time.Minute)
	assert.False(t, auth.IsAdmin(ctx, "admin"),
		"40 minutes without IsAuthenticated must expire a 30-minute session")
}

func TestSessionAuthority_Logout(t *testing.T) {
	auth, sink := newTestAuthority(t)
	ctx := context.Background()

	_, err := auth.AuthenticateCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.True(t, auth.IsAuthenticated(ctx, "cust-1"))

	auth.Logout(ctx, "cust-1")
	assert.False(t, auth.IsAuthenticated(ctx, "cust-1"))
	assert.NotEmpty(t, sink.byType(EventLogout))
}

func TestSessionAuthority_VerificationFailureClearsSession(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	_, err := auth.AuthenticateCustomer(ctx, "cust-1")
	require.NoError(t, err)

	// Corrupt the persisted record's token by rewriting it under the same
	// cipher with a forged token value.
	rec := SessionRecord{Token: "forged.token.value", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}
	require.NoError(t, auth.saveRecord(ctx, "cust-1", rec))

	assert.False(t, auth.IsAuthenticated(ctx, "cust-1"))
	// The invalid session was tombstoned.
	_, ok := auth.loadRecord(ctx, "cust-1")
	assert.False(t, ok)
}

func TestSessionAuthority_CurrentIdentityPrefersAdmin(t *testing.T) {
	auth, _ := newTestAuthority(t)
	ctx := context.Background()

	_, err := auth.AuthenticateCustomer(ctx, "cust-1")
	require.NoError(t, err)
	_, err = auth.AuthenticateAdmin(ctx, "admin")
	require.NoError(t, err)

	id := auth.CurrentIdentity(ctx, "cust-1", "admin")
	require.NotNil(t, id)
	assert.Equal(t, RoleAdmin, id.Role)
	assert.Equal(t, "admin", id.ID)

	auth.Logout(ctx, "admin")
	id = auth.CurrentIdentity(ctx, "cust-1", "admin")
	require.NotNil(t, id)
	assert.Equal(t, RoleCustomer, id.Role)
}
