package domain

import (
	"context"
	"time"
)

// SessionStore is the transactional backend used by the pessimistic protocol.
type SessionStore interface {
	// CreateSession persists a session with its initial roster and returns it with slot ids assigned.
	CreateSession(ctx context.Context, snap Snapshot) (*Snapshot, error)
	// WithTx runs fn in a transaction. Any error from fn rolls the transaction back.
	WithTx(ctx context.Context, fn func(tx SessionTx) error) error
	// Read returns an unlocked snapshot for display.
	Read(ctx context.Context, sessionID string) (*Snapshot, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// SessionTx is a unit of work holding the row lock obtained by LockedRead.
type SessionTx interface {
	LockedRead(ctx context.Context, sessionID string) (*Session, error)
	ListSlotsOrdered(ctx context.Context, sessionID string) ([]Slot, error)
	UpdateFields(ctx context.Context, s Session) error
	// InsertSlot returns the slot as stored. Stores with a shared clock stamp JoinedAt
	// themselves so join order does not depend on the caller's clock.
	InsertSlot(ctx context.Context, slot Slot) (Slot, error)
	DeleteSlot(ctx context.Context, slotID int64) error
	SetSlotTeam(ctx context.Context, slotID int64, team Team) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Lock is a soft claim on a document. It expires at Until.
type Lock struct {
	By    string
	Until time.Time
}

// Held reports whether the lock is owned by someone other than actor and still valid at now.
func (l *Lock) Held(actor string, now time.Time) bool {
	return l != nil && l.By != actor && now.Before(l.Until)
}

// Owns reports whether actor holds an unexpired claim.
func (l *Lock) Owns(actor string, now time.Time) bool {
	return l != nil && l.By == actor && now.Before(l.Until)
}

// Document is the versioned state object used by the optimistic protocol.
// Revision is the compare-and-swap counter and is independent of Session.RosterVersion.
type Document struct {
	Revision int64
	Snapshot Snapshot
	Lock     *Lock
}

// DocumentStore exposes a compare-and-swap primitive over a whole document.
type DocumentStore interface {
	Create(ctx context.Context, doc Document) error
	Load(ctx context.Context, sessionID string) (*Document, error)
	// CompareAndSwap replaces the document only if its current revision equals expected.
	// It reports false with a nil error when the revision did not match.
	CompareAndSwap(ctx context.Context, sessionID string, expected int64, next Document) (bool, error)
	Delete(ctx context.Context, sessionID string) error
}

// Sweeper is implemented by document stores that need explicit retention.
type Sweeper interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
