// Package leaderboard keeps additive per-user scores for a community and
// ranks them on demand.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hoshinonyaruko/dungeon-in-im/kv"
	"github.com/hoshinonyaruko/dungeon-in-im/structs"
)

// DefaultSize is used by TopN when n is not positive.
const DefaultSize = 5

const (
	fieldScore  = "score"
	fieldName   = "name"
	fieldStreak = "streak"
)

// Board is one leaderboard per community, stored as a single hash keyed
// by board name and community. All score changes are hash increments.
type Board struct {
	store kv.Store
	name  string
}

// NewDungeon returns the board dungeon actions award points to.
func NewDungeon(store kv.Store) *Board {
	return &Board{store: store, name: "leaderboard"}
}

// NewTrivia returns the board the daily puzzle awards points to.
func NewTrivia(store kv.Store) *Board {
	return &Board{store: store, name: "trivia"}
}

// Key is the hash key holding community's board.
func (b *Board) Key(community string) string {
	return b.name + ":" + community
}

// Add atomically adds delta to userID's score and returns the new total.
func (b *Board) Add(ctx context.Context, community, userID, username string, delta int64) (int64, error) {
	key := b.Key(community)
	if username != "" {
		if err := b.store.HSet(ctx, key, field(userID, fieldName), username); err != nil {
			return 0, err
		}
	}
	return b.store.HIncrBy(ctx, key, field(userID, fieldScore), delta)
}

// IncrStreak bumps userID's streak by one.
func (b *Board) IncrStreak(ctx context.Context, community, userID string) (int64, error) {
	return b.store.HIncrBy(ctx, b.Key(community), field(userID, fieldStreak), 1)
}

// ResetStreak sets userID's streak back to zero.
func (b *Board) ResetStreak(ctx context.Context, community, userID string) error {
	return b.store.HSet(ctx, b.Key(community), field(userID, fieldStreak), "0")
}

// Entries returns every user on the board keyed by userID.
func (b *Board) Entries(ctx context.Context, community string) (map[string]structs.LeaderboardEntry, error) {
	raw, err := b.store.HGetAll(ctx, b.Key(community))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", b.Key(community), err)
	}

	entries := make(map[string]structs.LeaderboardEntry)
	for f, v := range raw {
		i := strings.LastIndexByte(f, ':')
		if i <= 0 {
			continue
		}
		userID, kind := f[:i], f[i+1:]
		e := entries[userID]
		e.UserID = userID
		switch kind {
		case fieldName:
			e.Username = v
		case fieldScore:
			e.Score, _ = strconv.ParseInt(v, 10, 64)
		case fieldStreak:
			e.Streak, _ = strconv.ParseInt(v, 10, 64)
		}
		entries[userID] = e
	}
	return entries, nil
}

// TopN 返回得分最高的 n 个玩家，按分数降序，同分按连胜降序。
func (b *Board) TopN(ctx context.Context, community string, n int) ([]structs.LeaderboardEntry, error) {
	entries, err := b.Entries(ctx, community)
	if err != nil {
		return nil, err
	}
	top := make([]structs.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		top = append(top, e)
	}
	return Rank(top, n), nil
}

// Rank sorts entries by score then streak, both descending, and keeps the
// first n. Remaining ties are broken by userID so the order is stable.
func Rank(entries []structs.LeaderboardEntry, n int) []structs.LeaderboardEntry {
	if n <= 0 {
		n = DefaultSize
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Streak != b.Streak {
			return a.Streak > b.Streak
		}
		return a.UserID < b.UserID
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func field(userID, kind string) string {
	return userID + ":" + kind
}
