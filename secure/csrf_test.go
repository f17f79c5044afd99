package secure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcavalli/fidelgate/store/memory"
)

func TestCSRFGuard_IssueAndValidate(t *testing.T) {
	g := NewCSRFGuard(newTestCipher(t), memory.New(), testLogger())
	ctx := context.Background()

	token, err := g.IssueToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.True(t, g.Validate(ctx, token))
	// Reusable until regenerated.
	assert.True(t, g.Validate(ctx, token))
}

func TestCSRFGuard_ReissueInvalidatesPrevious(t *testing.T) {
	g := NewCSRFGuard(newTestCipher(t), memory.New(), testLogger())
	ctx := context.Background()

	first, err := g.IssueToken(ctx)
	require.NoError(t, err)
	second, err := g.IssueToken(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.False(t, g.Validate(ctx, first), "stale token must be rejected after reissue")
	assert.True(t, g.Validate(ctx, second))
}

func TestCSRFGuard_NothingPersisted(t *testing.T) {
	g := NewCSRFGuard(newTestCipher(t), memory.New(), testLogger())
	ctx := context.Background()

	assert.False(t, g.Validate(ctx, "anything"))
	assert.False(t, g.Validate(ctx, ""))
}

func TestCSRFGuard_WrongToken(t *testing.T) {
	g := NewCSRFGuard(newTestCipher(t), memory.New(), testLogger())
	ctx := context.Background()

	_, err := g.IssueToken(ctx)
	require.NoError(t, err)
	assert.False(t, g.Validate(ctx, "forged-token"))
}

func TestCSRFGuard_CorruptPersistedToken(t *testing.T) {
	st := memory.New()
	g := NewCSRFGuard(newTestCipher(t), st, testLogger())
	ctx := context.Background()

	token, err := g.IssueToken(ctx)
	require.NoError(t, err)

	// Overwrite the stored blob with something that will not decrypt.
	require.NoError(t, st.Set(ctx, csrfCollection, csrfRecordKey, []byte("corrupt")))
	assert.False(t, g.Validate(ctx, token))
}
