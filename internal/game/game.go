// Package game defines the boundary between the engine and the game it plays.
//
// World is read once per beat. Actions are the low-level primitives, invoked
// only from coordinator work so that no two interactions overlap.
package game

import (
	"context"
	"errors"

	"acolyte/internal/state"
)

var (
	ErrNotRunning        = errors.New("game is not running")
	ErrUnknownSituation  = errors.New("unknown situation")
	ErrSituationClosed   = errors.New("situation is not open")
	ErrSituationBusy     = errors.New("situation is in the wrong state")
	ErrUnknownSlot       = errors.New("unknown slot")
	ErrSlotOccupied      = errors.New("slot is occupied")
	ErrCardUnavailable   = errors.New("card is not on the table")
	ErrNoRecipe          = errors.New("no recipe matches the slotted cards")
	ErrNoMansus          = errors.New("no mansus choice is open")
	ErrUnknownMansusFace = errors.New("unknown mansus face")
)

// World produces state snapshots.
type World interface {
	Snapshot(ctx context.Context) (*state.Snapshot, error)
}

// Actions are the fallible interaction primitives.
type Actions interface {
	OpenSituation(ctx context.Context, situation string) error
	SlotCard(ctx context.Context, situation, slot, card string) error
	StartSituation(ctx context.Context, situation string) error
	ConcludeSituation(ctx context.Context, situation string) error
	CloseSituation(ctx context.Context, situation string) error
	ChooseMansus(ctx context.Context, face string) error
	Tidy(ctx context.Context) error
}

// Game is a world that can also be acted upon.
type Game interface {
	World
	Actions
}

// Clock is implemented by worlds whose time only passes when told to.
type Clock interface {
	Advance()
}
