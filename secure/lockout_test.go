package secure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcavalli/fidelgate/store/memory"
)

type captureSink struct {
	events []Event
}

func (c *captureSink) LogEvent(_ context.Context, e Event) {
	c.events = append(c.events, e)
}

func (c *captureSink) byType(typ EventType) []Event {
	var out []Event
	for _, e := range c.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestLockout(t *testing.T) (*Lockout, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	return NewLockout(newTestCipher(t), memory.New(), sink, testLogger()), sink
}

func TestLockout_CustomerThreshold(t *testing.T) {
	l, sink := newTestLockout(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		status := l.RecordFailure(ctx, IdentityGeneric)
		assert.False(t, status.Locked, "failure %d should not lock", i+1)
		assert.Equal(t, 4-i, status.RemainingAttempts)
	}

	status := l.RecordFailure(ctx, IdentityGeneric)
	require.True(t, status.Locked, "5th failure must lock the generic slot")
	assert.InDelta(t, 120, status.RemainingSeconds, 1)

	assert.Len(t, sink.byType(EventLoginFailure), 4)
	assert.Len(t, sink.byType(EventAccountBlocked), 1)

	checked := l.CheckLocked(ctx, IdentityGeneric)
	assert.True(t, checked.Locked)
	assert.Greater(t, checked.RemainingSeconds, 0)
}

func TestLockout_AdminThresholdIsStricter(t *testing.T) {
	l, _ := newTestLockout(t)
	ctx := context.Background()

	l.RecordFailure(ctx, IdentityAdmin)
	l.RecordFailure(ctx, IdentityAdmin)
	status := l.RecordFailure(ctx, IdentityAdmin)
	require.True(t, status.Locked, "3rd admin failure must lock")
	assert.InDelta(t, 300, status.RemainingSeconds, 1)
}

func TestLockout_SuccessClearsImmediately(t *testing.T) {
	l, sink := newTestLockout(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.RecordFailure(ctx, IdentityGeneric)
	}
	require.True(t, l.CheckLocked(ctx, IdentityGeneric).Locked)

	l.RecordSuccess(ctx, IdentityGeneric)
	status := l.CheckLocked(ctx, IdentityGeneric)
	assert.False(t, status.Locked)
	assert.Equal(t, CustomerLoginPolicy.MaxFailures, status.RemainingAttempts,
		"success must reset the failure counter")
	assert.Len(t, sink.byType(EventLoginSuccess), 1)
}

func TestLockout_CooldownElapsesAndResetsCounter(t *testing.T) {
	l, _ := newTestLockout(t)
	ctx := context.Background()

	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		l.RecordFailure(ctx, IdentityGeneric)
	}
	require.True(t, l.CheckLocked(ctx, IdentityGeneric).Locked)

	now = now.Add(121 * time.Second)
	status := l.CheckLocked(ctx, IdentityGeneric)
	assert.False(t, status.Locked, "elapsed cooldown must unlock")
	assert.Equal(t, CustomerLoginPolicy.MaxFailures, status.RemainingAttempts,
		"cooldown expiry must reset the failure counter to 0")

	// The slot starts counting from scratch again.
	first := l.RecordFailure(ctx, IdentityGeneric)
	assert.False(t, first.Locked)
	assert.Equal(t, 4, first.RemainingAttempts)
}

func TestLockout_CountdownDecreases(t *testing.T) {
	l, _ := newTestLockout(t)
	ctx := context.Background()

	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		l.RecordFailure(ctx, IdentityGeneric)
	}

	before := l.CheckLocked(ctx, IdentityGeneric).RemainingSeconds
	now = now.Add(30 * time.Second)
	after := l.CheckLocked(ctx, IdentityGeneric).RemainingSeconds
	assert.InDelta(t, 30, before-after, 1)
}

func TestLockout_IdentitiesAreIsolated(t *testing.T) {
	l, _ := newTestLockout(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		l.RecordFailure(ctx, IdentityGeneric)
	}
	require.True(t, l.CheckLocked(ctx, IdentityGeneric).Locked)
	assert.False(t, l.CheckLocked(ctx, IdentityAdmin).Locked)
}

func TestLockout_UnknownIdentityUsesFallbackPolicy(t *testing.T) {
	l, _ := newTestLockout(t)

	policy := l.PolicyFor("someone-else")
	assert.Equal(t, CustomerLoginPolicy, policy)
}
