// Package kvtest holds the behaviour every kv.Store backend must share.
package kvtest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hoshinonyaruko/dungeon-in-im/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the kv.Store contract.
func Run(t *testing.T, store kv.Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.True(t, errors.Is(err, kv.ErrNotFound), "got %v", err)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "game:alpha", []byte(`{"a":1}`)))
		require.NoError(t, store.Set(ctx, "game:alpha", []byte(`{"a":2}`)))
		got, err := store.Get(ctx, "game:alpha")
		require.NoError(t, err)
		assert.Equal(t, `{"a":2}`, string(got))
	})

	t.Run("setnx does not overwrite", func(t *testing.T) {
		ok, err := store.SetNX(ctx, "game:beta", []byte("first"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.SetNX(ctx, "game:beta", []byte("second"))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := store.Get(ctx, "game:beta")
		require.NoError(t, err)
		assert.Equal(t, "first", string(got))
	})

	t.Run("hash fields", func(t *testing.T) {
		empty, err := store.HGetAll(ctx, "leaderboard:none")
		require.NoError(t, err)
		assert.Empty(t, empty)

		require.NoError(t, store.HSet(ctx, "leaderboard:alpha", "u1:name", "ann"))
		n, err := store.HIncrBy(ctx, "leaderboard:alpha", "u1:score", 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		n, err = store.HIncrBy(ctx, "leaderboard:alpha", "u1:score", 4)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)

		all, err := store.HGetAll(ctx, "leaderboard:alpha")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"u1:name": "ann", "u1:score": "7"}, all)

		other, err := store.HGetAll(ctx, "leaderboard:beta")
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		const workers, each = 8, 25
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < each; j++ {
					if _, err := store.HIncrBy(ctx, "leaderboard:race", "u", 1); err != nil {
						t.Error(err)
						return
					}
				}
			}()
		}
		wg.Wait()

		all, err := store.HGetAll(ctx, "leaderboard:race")
		require.NoError(t, err)
		assert.Equal(t, "200", all["u"])
	})

	t.Run("concurrent setnx has one winner", func(t *testing.T) {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.SetNX(ctx, "game:race", []byte("x"))
				if err != nil {
					t.Error(err)
					return
				}
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}
