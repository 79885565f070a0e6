// Package state owns the canonical per-community GameState.
//
// The GameState record is read and written whole, so concurrent writers
// to the same community race and the last save wins. Scores are never
// read-modify-written through the record: the leaderboard's score field
// is the only counter, it changes through atomic increments, and every
// load overlays it onto the players it returns.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hoshinonyaruko/dungeon-in-im/grid"
	"github.com/hoshinonyaruko/dungeon-in-im/kv"
	"github.com/hoshinonyaruko/dungeon-in-im/leaderboard"
	"github.com/hoshinonyaruko/dungeon-in-im/structs"
)

// DefaultHP is the hp a player starts with.
const DefaultHP = 100

const week = 7 * 24 * time.Hour

// Store implements get-or-init, save and scoring on top of a kv.Store.
type Store struct {
	kv    kv.Store
	board *leaderboard.Board
	now   func() time.Time

	locks sync.Map // community -> *sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store persisting to store and scoring on board.
func New(store kv.Store, board *leaderboard.Board, opts ...Option) *Store {
	s := &Store{kv: store, board: board, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Board returns the leaderboard scores are mirrored to.
func (s *Store) Board() *leaderboard.Board {
	return s.board
}

func gameKey(community string) string { return "game:" + community }

// WeekNumber is the coarse epoch bucket a time falls in.
func WeekNumber(t time.Time) int64 {
	return t.Unix() / int64(week/time.Second)
}

// Lock serialises whole-record mutations of one community inside this
// process. The returned func releases it.
func (s *Store) Lock(community string) func() {
	v, _ := s.locks.LoadOrStore(community, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetOrInit 读取社区的游戏状态；不存在时以 SetNX 创建，已存在的记录永远不会被重置。
func (s *Store) GetOrInit(ctx context.Context, community string) (*structs.GameState, error) {
	if community == "" {
		return nil, errors.New("community is required")
	}

	raw, err := s.kv.Get(ctx, gameKey(community))
	if errors.Is(err, kv.ErrNotFound) {
		fresh := s.newState(community)
		payload, err := json.Marshal(fresh)
		if err != nil {
			return nil, fmt.Errorf("marshal game state: %w", err)
		}
		created, err := s.kv.SetNX(ctx, gameKey(community), payload)
		if err != nil {
			return nil, fmt.Errorf("create game state %s: %w", community, err)
		}
		if created {
			return fresh, nil
		}
		// lost the creation race; read the winner's record
		raw, err = s.kv.Get(ctx, gameKey(community))
	}
	if err != nil {
		return nil, fmt.Errorf("load game state %s: %w", community, err)
	}

	var st structs.GameState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode game state %s: %w", community, err)
	}
	if st.Players == nil {
		st.Players = make(map[string]*structs.PlayerState)
	}
	if err := s.overlayScores(ctx, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Save writes the whole record and refreshes UpdatedAt. Last write wins.
func (s *Store) Save(ctx context.Context, st *structs.GameState) error {
	st.UpdatedAt = s.now().UnixMilli()
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}
	if err := s.kv.Set(ctx, gameKey(st.SubredditName), payload); err != nil {
		return fmt.Errorf("save game state %s: %w", st.SubredditName, err)
	}
	return nil
}

// AddPlayer adds userID at the level entrance in memory only. It reports
// whether a player was added; the caller's next Save persists it.
func (s *Store) AddPlayer(st *structs.GameState, userID, username string) bool {
	if _, ok := st.Players[userID]; ok {
		return false
	}
	st.Players[userID] = &structs.PlayerState{
		UserID:       userID,
		Username:     username,
		Position:     st.CurrentLevel.Start,
		HP:           DefaultHP,
		LastActionAt: s.now().UnixMilli(),
	}
	return true
}

// EnsurePlayer adds userID at the level entrance if it is not already
// playing and persists the state. It reports whether a player was added.
func (s *Store) EnsurePlayer(ctx context.Context, st *structs.GameState, userID, username string) (bool, error) {
	if !s.AddPlayer(st, userID, username) {
		return false, nil
	}
	if err := s.Save(ctx, st); err != nil {
		delete(st.Players, userID)
		return false, err
	}
	return true, nil
}

// AddScore atomically adds delta to the player's leaderboard score and
// returns the new total. PlayerState scores are read back from the same
// field, so the two cannot diverge.
func (s *Store) AddScore(ctx context.Context, community, userID, username string, delta int64) (int64, error) {
	total, err := s.board.Add(ctx, community, userID, username, delta)
	if err != nil {
		return 0, fmt.Errorf("add score: %w", err)
	}
	return total, nil
}

// SetPost records the post currently showing the community's dungeon.
func (s *Store) SetPost(ctx context.Context, community, postID string) (*structs.GameState, error) {
	unlock := s.Lock(community)
	defer unlock()

	st, err := s.GetOrInit(ctx, community)
	if err != nil {
		return nil, err
	}
	st.CurrentPostID = postID
	if err := s.Save(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) newState(community string) *structs.GameState {
	now := s.now()
	return &structs.GameState{
		SubredditName: community,
		CurrentLevel:  grid.BuildLevel(1),
		Players:       make(map[string]*structs.PlayerState),
		WeekNumberUTC: WeekNumber(now),
		UpdatedAt:     now.UnixMilli(),
	}
}

func (s *Store) overlayScores(ctx context.Context, st *structs.GameState) error {
	if len(st.Players) == 0 {
		return nil
	}
	entries, err := s.board.Entries(ctx, st.SubredditName)
	if err != nil {
		return fmt.Errorf("load scores %s: %w", st.SubredditName, err)
	}
	for id, p := range st.Players {
		p.Score = entries[id].Score
	}
	return nil
}
