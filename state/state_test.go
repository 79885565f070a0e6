package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hoshinonyaruko/dungeon-in-im/kv"
	"github.com/hoshinonyaruko/dungeon-in-im/leaderboard"
	"github.com/hoshinonyaruko/dungeon-in-im/structs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 9, 19, 12, 0, 0, 0, time.UTC)

func newTestStore(store kv.Store) *Store {
	return New(store, leaderboard.NewDungeon(store), WithClock(func() time.Time { return fixedNow }))
}

func TestGetOrInitCreatesFreshState(t *testing.T) {
	s := newTestStore(kv.NewMemory())

	st, err := s.GetOrInit(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", st.SubredditName)
	assert.Equal(t, 1, st.CurrentLevel.LevelNumber)
	assert.Empty(t, st.Players)
	assert.Nil(t, st.CurrentRoomEvent)
	assert.Equal(t, WeekNumber(fixedNow), st.WeekNumberUTC)
	assert.Equal(t, fixedNow.UnixMilli(), st.UpdatedAt)
}

func TestGetOrInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(kv.NewMemory())

	first, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	_, err = s.EnsurePlayer(ctx, first, "u1", "ann")
	require.NoError(t, err)

	second, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, first.CurrentLevel.LevelNumber, second.CurrentLevel.LevelNumber)
	assert.Equal(t, first.Players, second.Players)
}

func TestGetOrInitRequiresCommunity(t *testing.T) {
	s := newTestStore(kv.NewMemory())
	_, err := s.GetOrInit(context.Background(), "")
	assert.Error(t, err)
}

func TestGetOrInitConcurrentCreatesOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(kv.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.GetOrInit(ctx, "alpha")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentLevel.LevelNumber)
}

func TestCommunitiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(kv.NewMemory())

	alpha, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	_, err = s.EnsurePlayer(ctx, alpha, "u1", "ann")
	require.NoError(t, err)
	_, err = s.AddScore(ctx, "alpha", "u1", "ann", 5)
	require.NoError(t, err)

	beta, err := s.GetOrInit(ctx, "beta")
	require.NoError(t, err)
	assert.Empty(t, beta.Players)

	top, err := s.Board().TopN(ctx, "beta", 5)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestEnsurePlayer(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(kv.NewMemory())
	st, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)

	added, err := s.EnsurePlayer(ctx, st, "u1", "ann")
	require.NoError(t, err)
	assert.True(t, added)

	p := st.Players["u1"]
	require.NotNil(t, p)
	assert.Equal(t, st.CurrentLevel.Start, p.Position)
	assert.Equal(t, DefaultHP, p.HP)
	assert.Zero(t, p.Score)

	p.Position = structs.Point{X: 3, Y: 3}
	added, err = s.EnsurePlayer(ctx, st, "u1", "renamed")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, structs.Point{X: 3, Y: 3}, st.Players["u1"].Position)
	assert.Equal(t, "ann", st.Players["u1"].Username)

	loaded, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	assert.Contains(t, loaded.Players, "u1")
}

func TestAddScoreUpdatesPlayerAndLeaderboard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(kv.NewMemory())
	st, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	_, err = s.EnsurePlayer(ctx, st, "u1", "ann")
	require.NoError(t, err)

	total, err := s.AddScore(ctx, "alpha", "u1", "ann", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	total, err = s.AddScore(ctx, "alpha", "u1", "ann", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	loaded, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(4), loaded.Players["u1"].Score)

	entries, err := s.Board().Entries(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(4), entries["u1"].Score)
	assert.Equal(t, "ann", entries["u1"].Username)
}

func TestStaleSaveDoesNotLoseScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(kv.NewMemory())
	st, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	_, err = s.EnsurePlayer(ctx, st, "u1", "ann")
	require.NoError(t, err)

	stale, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)

	_, err = s.AddScore(ctx, "alpha", "u1", "ann", 3)
	require.NoError(t, err)

	// a writer still holding the pre-increment record saves over it
	require.NoError(t, s.Save(ctx, stale))

	loaded, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.Players["u1"].Score)
}

func TestSetPost(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(kv.NewMemory())

	st, err := s.SetPost(ctx, "alpha", "t3_abc")
	require.NoError(t, err)
	assert.Equal(t, "t3_abc", st.CurrentPostID)

	loaded, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "t3_abc", loaded.CurrentPostID)
}

func TestLockSerialisesCommunity(t *testing.T) {
	s := newTestStore(kv.NewMemory())

	unlock := s.Lock("alpha")
	acquired := make(chan struct{})
	go func() {
		release := s.Lock("alpha")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}

	// other communities are not blocked
	s.Lock("beta")()

	unlock()
	<-acquired
}

type failingStore struct {
	kv.Store
	failSet  bool
	failIncr bool
}

var errDown = errors.New("store down")

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errDown
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if f.failIncr {
		return 0, errDown
	}
	return f.Store.HIncrBy(ctx, key, field, delta)
}

func TestAddScoreFailureKeepsPlayerAndBoardEqual(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: kv.NewMemory()}
	s := newTestStore(store)
	st, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	_, err = s.EnsurePlayer(ctx, st, "u1", "ann")
	require.NoError(t, err)
	_, err = s.AddScore(ctx, "alpha", "u1", "ann", 2)
	require.NoError(t, err)

	store.failIncr = true
	_, err = s.AddScore(ctx, "alpha", "u1", "ann", 3)
	require.ErrorIs(t, err, errDown)
	store.failIncr = false

	loaded, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	entries, err := s.Board().Entries(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Players["u1"].Score)
	assert.Equal(t, entries["u1"].Score, loaded.Players["u1"].Score)
}

func TestAddPlayerIsInMemoryOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(kv.NewMemory())
	st, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)

	assert.True(t, s.AddPlayer(st, "u1", "ann"))
	assert.False(t, s.AddPlayer(st, "u1", "ann"))
	assert.Equal(t, st.CurrentLevel.Start, st.Players["u1"].Position)

	loaded, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	assert.NotContains(t, loaded.Players, "u1")

	require.NoError(t, s.Save(ctx, st))
	loaded, err = s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)
	assert.Contains(t, loaded.Players, "u1")
}

func TestEnsurePlayerSaveFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: kv.NewMemory()}
	s := newTestStore(store)

	st, err := s.GetOrInit(ctx, "alpha")
	require.NoError(t, err)

	store.failSet = true
	_, err = s.EnsurePlayer(ctx, st, "u1", "ann")
	assert.ErrorIs(t, err, errDown)
	assert.NotContains(t, st.Players, "u1")
}
