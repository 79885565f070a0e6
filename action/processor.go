// Package action applies player actions to a community's game state.
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hoshinonyaruko/dungeon-in-im/content"
	"github.com/hoshinonyaruko/dungeon-in-im/grid"
	"github.com/hoshinonyaruko/dungeon-in-im/state"
	"github.com/hoshinonyaruko/dungeon-in-im/structs"
)

var (
	// ErrNotAuthenticated means the request carried no user identity.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrMissingCommunity means the request carried no community.
	ErrMissingCommunity = errors.New("missing community")
	// ErrPersistence wraps every storage failure.
	ErrPersistence = errors.New("persistence failure")
)

const (
	moveScore   = 1
	attackScore = 3

	nothingOfNote = "You find nothing of note."
)

// Request is one action submitted by one user against one community.
type Request struct {
	Community string
	UserID    string
	Username  string
	Action    Action
}

// Result is the outcome of a processed action.
type Result struct {
	Message string
	State   *structs.GameState
}

// Processor runs actions against a state.Store.
type Processor struct {
	store         *state.Store
	defaultPrompt string
	now           func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithDefaultPrompt sets the prompt GenerateRoom uses when none is given.
func WithDefaultPrompt(prompt string) Option {
	return func(p *Processor) { p.defaultPrompt = prompt }
}

// WithClock overrides the wall clock used for lastActionAt.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor returns a Processor backed by store.
func NewProcessor(store *state.Store, opts ...Option) *Processor {
	p := &Processor{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process 处理一次行动：加载状态、应用行动、保存状态，最后原子地加分。
//
// The community is locked for the whole read-modify-write so actions in
// this process are applied in order. If any storage step fails the rest
// are skipped and the error wraps ErrPersistence.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if req.UserID == "" {
		return Result{}, ErrNotAuthenticated
	}
	if req.Community == "" {
		return Result{}, ErrMissingCommunity
	}
	if err := validate(req.Action); err != nil {
		return Result{}, err
	}

	unlock := p.store.Lock(req.Community)
	defer unlock()

	st, err := p.store.GetOrInit(ctx, req.Community)
	if err != nil {
		return Result{}, persistence(err)
	}

	var player *structs.PlayerState
	if !Privileged(req.Action) {
		// enrolment is saved together with the action below
		p.store.AddPlayer(st, req.UserID, req.Username)
		player = st.Players[req.UserID]
		player.LastActionAt = p.now().UnixMilli()
	}

	msg, delta, err := p.apply(st, player, req.Action)
	if err != nil {
		return Result{}, err
	}

	if err := p.store.Save(ctx, st); err != nil {
		return Result{}, persistence(err)
	}

	if delta > 0 {
		total, err := p.store.AddScore(ctx, req.Community, req.UserID, req.Username, delta)
		if err != nil {
			return Result{}, persistence(err)
		}
		player.Score = total
	}

	return Result{Message: msg, State: st}, nil
}

// apply mutates st in memory and returns the message and score delta.
func (p *Processor) apply(st *structs.GameState, player *structs.PlayerState, a Action) (string, int64, error) {
	switch a := a.(type) {
	case Move:
		dx, dy, ok := a.Direction.Vector()
		if !ok {
			return "", 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidAction, a.Direction)
		}
		x, y := grid.ResolveMove(st.CurrentLevel, player.Position.X, player.Position.Y, dx, dy)
		player.Position = structs.Point{X: x, Y: y}
		return "Moved " + string(a.Direction), moveScore, nil

	case Attack:
		// TODO: resolve combat against the room monster once hp is persisted per room.
		if ev := st.CurrentRoomEvent; ev != nil && ev.Monster != nil {
			return fmt.Sprintf("You strike at the %s!", ev.Monster.Name), attackScore, nil
		}
		return "You swing at the shadows.", attackScore, nil

	case Inspect:
		if st.CurrentRoomEvent == nil {
			return nothingOfNote, 0, nil
		}
		return st.CurrentRoomEvent.Description, 0, nil

	case GenerateRoom:
		ev := p.generate(a)
		st.CurrentRoomEvent = &ev
		return ev.Description, 0, nil

	case StartNewLevel:
		st.CurrentLevel = grid.BuildLevel(st.CurrentLevel.LevelNumber + 1)
		st.CurrentRoomEvent = nil
		for _, pl := range st.Players {
			pl.Position = st.CurrentLevel.Start
		}
		return fmt.Sprintf("Descended to level %d", st.CurrentLevel.LevelNumber), 0, nil
	}
	return "", 0, fmt.Errorf("%w: %T", ErrInvalidAction, a)
}

func (p *Processor) generate(a GenerateRoom) structs.RoomEvent {
	prompt := a.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = p.defaultPrompt
	}
	if strings.TrimSpace(prompt) == "" && strings.TrimSpace(a.ImageRef) == "" {
		return content.Fallback()
	}
	return content.Generate(prompt, a.ImageRef)
}

func validate(a Action) error {
	if a == nil {
		return ErrInvalidAction
	}
	if m, ok := a.(Move); ok {
		if _, _, ok := m.Direction.Vector(); !ok {
			return fmt.Errorf("%w: unknown direction %q", ErrInvalidAction, m.Direction)
		}
	}
	return nil
}

func persistence(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
