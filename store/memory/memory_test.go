package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcavalli/fidelgate/store"
)

func TestMemoryStore(t *testing.T) {
	s := New()
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "sessions", "cust-1", []byte(`{"token":"abc"}`)))

		got, err := s.Get(ctx, "sessions", "cust-1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"token":"abc"}`), got)

		// Mutating a returned value must not reach the stored copy.
		got[0] = 'X'
		got2, err := s.Get(ctx, "sessions", "cust-1")
		require.NoError(t, err)
		assert.NotEqual(t, byte('X'), got2[0])
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := s.Get(ctx, "nonexistent", "cust-1")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.Get(ctx, "sessions", "nonexistent")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "sessions", "cust-2", []byte("x")))
		require.NoError(t, s.Delete(ctx, "sessions", "cust-2"))

		_, err := s.Get(ctx, "sessions", "cust-2")
		assert.ErrorIs(t, err, store.ErrNotFound)

		// Deleting an absent key is not an error.
		assert.NoError(t, s.Delete(ctx, "sessions", "never-existed"))
	})

	t.Run("Query", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "customers", "c1", []byte(`{"phone":"+39 111"}`)))
		require.NoError(t, s.Set(ctx, "customers", "c2", []byte(`{"phone":"+39 222"}`)))

		all, err := s.Query(ctx, "customers", nil)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		matched, err := s.Query(ctx, "customers", func(v []byte) bool {
			return bytes.Contains(v, []byte("+39 222"))
		})
		require.NoError(t, err)
		assert.Len(t, matched, 1)
	})

	t.Run("Keys", func(t *testing.T) {
		keys, err := s.Keys(ctx, "customers")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "c2"}, keys)
	})
}
