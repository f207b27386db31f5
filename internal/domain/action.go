package domain

import (
	"context"
	"time"
)

type Action string

const (
	ActionJoin   Action = "join"
	ActionLeave  Action = "leave"
	ActionFinish Action = "finish"
	ActionStop   Action = "stop"
	ActionRemove Action = "remove"
	ActionRename Action = "rename"
)

// OwnerOnly reports whether the action is restricted to the session owner.
func (a Action) OwnerOnly() bool {
	switch a {
	case ActionFinish, ActionStop, ActionRemove, ActionRename:
		return true
	default:
		return false
	}
}

func (a Action) Valid() bool {
	switch a {
	case ActionJoin, ActionLeave, ActionFinish, ActionStop, ActionRemove, ActionRename:
		return true
	default:
		return false
	}
}

// Request is a single mutation against one session.
type Request struct {
	SessionID string
	Scope     Scope
	ActorID   string
	Action    Action

	Targets []string // remove
	Title   string   // rename
}

// Outcome is the result of an accepted mutation.
type Outcome struct {
	View     View
	Removed  []string
	NotFound []string
	// Deleted is set when a stop also removed the record.
	Deleted bool
	// Attempts counts optimistic attempts; always 1 for the pessimistic protocol.
	Attempts int
}

// Coordinator grants exclusive access to one session for the duration of a mutation.
type Coordinator interface {
	Create(ctx context.Context, snap Snapshot) (*Snapshot, error)
	Mutate(ctx context.Context, req Request) (*Outcome, error)
	Read(ctx context.Context, sessionID string) (*Snapshot, error)
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
