package action

import (
	"errors"
	"fmt"
	"strings"
)

// Direction is a compass direction a player can move in.
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

// Vector returns the unit step for d.
func (d Direction) Vector() (dx, dy int, ok bool) {
	switch d {
	case North:
		return 0, -1, true
	case South:
		return 0, 1, true
	case East:
		return 1, 0, true
	case West:
		return -1, 0, true
	}
	return 0, 0, false
}

// Action is one of Move, Attack, Inspect, GenerateRoom or StartNewLevel.
// The set is closed: the unexported method keeps other packages from
// adding cases the processor does not handle.
type Action interface {
	Kind() string
	action()
}

// Move steps the player one tile.
type Move struct {
	Direction Direction
}

// Attack swings at whatever occupies the room. Monster hp is not tracked.
type Attack struct{}

// Inspect reads the current room description.
type Inspect struct{}

// GenerateRoom replaces the current room event. A blank prompt uses the
// processor's default prompt.
type GenerateRoom struct {
	Prompt   string
	ImageRef string
}

// StartNewLevel advances the community to the next level. It is meant for
// moderation tooling; callers must authorise it before submitting.
type StartNewLevel struct{}

func (Move) Kind() string          { return "move" }
func (Attack) Kind() string        { return "attack" }
func (Inspect) Kind() string       { return "inspect" }
func (GenerateRoom) Kind() string  { return "generateRoom" }
func (StartNewLevel) Kind() string { return "startNewLevel" }

func (Move) action()          {}
func (Attack) action()        {}
func (Inspect) action()       {}
func (GenerateRoom) action()  {}
func (StartNewLevel) action() {}

// Privileged reports whether a is reserved for moderation tooling.
func Privileged(a Action) bool {
	switch a.(type) {
	case StartNewLevel, GenerateRoom:
		return true
	}
	return false
}

// Payload is the wire form of an action.
type Payload struct {
	Kind      string `json:"kind"`
	Direction string `json:"direction,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// ErrInvalidAction is returned for payloads that do not name a known action.
var ErrInvalidAction = errors.New("invalid action")

// Decode validates a wire payload and returns the matching Action.
func Decode(p Payload) (Action, error) {
	switch p.Kind {
	case "move":
		d := Direction(strings.ToLower(strings.TrimSpace(p.Direction)))
		if _, _, ok := d.Vector(); !ok {
			return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidAction, p.Direction)
		}
		return Move{Direction: d}, nil
	case "attack":
		return Attack{}, nil
	case "inspect":
		return Inspect{}, nil
	case "generateRoom":
		return GenerateRoom{Prompt: p.Prompt, ImageRef: p.ImageURL}, nil
	case "startNewLevel":
		return StartNewLevel{}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, p.Kind)
}
