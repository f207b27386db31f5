package draft

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/teamdraft/internal/domain"
)

const (
	DefaultTitle   = "Draft"
	MaxTitleLength = 80
	seedLength     = 8
)

// Policy holds the deployment level switches that change roster rules.
type Policy struct {
	AllowDuplicateJoin bool
}

// SeedSource produces fresh shuffle seeds.
type SeedSource func() string

// NewSeed returns the first eight characters of a random UUID.
func NewSeed() string {
	return uuid.NewString()[:seedLength]
}

// Result is the next snapshot plus per-target bookkeeping for bulk removals.
type Result struct {
	Next     domain.Snapshot
	Removed  []string
	NotFound []string
}

type Engine struct {
	policy Policy
	clock  clockwork.Clock
	seeds  SeedSource
}

func NewEngine(policy Policy, clock clockwork.Clock, seeds SeedSource) *Engine {
	if seeds == nil {
		seeds = NewSeed
	}
	return &Engine{policy: policy, clock: clock, seeds: seeds}
}

// NewSession builds the initial snapshot for a freshly started session.
// When autoJoinOwner is set the owner holds the first slot.
func (e *Engine) NewSession(id string, scope domain.Scope, ownerID, title string, autoJoinOwner bool) domain.Snapshot {
	now := e.clock.Now().UTC()
	snap := domain.Snapshot{
		Session: domain.Session{
			ID:        id,
			Scope:     scope,
			OwnerID:   ownerID,
			Title:     NormalizeTitle(title),
			Status:    domain.StatusCollecting,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if autoJoinOwner {
		snap.Slots = append(snap.Slots, domain.Slot{SessionID: id, UserID: ownerID, JoinedAt: now})
		snap.Session.RosterVersion = 1
	}
	return snap
}

// Apply validates req against the snapshot and dispatches it. Conditions are checked in
// order closed, not owner, action specific, and the first failing one is returned.
func (e *Engine) Apply(snap domain.Snapshot, req domain.Request) (*Result, error) {
	if !req.Action.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAction, req.Action)
	}
	if snap.Session.Status == domain.StatusStopped {
		return nil, domain.ErrSessionClosed
	}
	if req.Action.OwnerOnly() && req.ActorID != snap.Session.OwnerID {
		return nil, domain.ErrNotOwner
	}

	switch req.Action {
	case domain.ActionJoin:
		return e.Join(snap, req.ActorID)
	case domain.ActionLeave:
		return e.Leave(snap, req.ActorID)
	case domain.ActionFinish:
		return e.Draw(snap)
	case domain.ActionStop:
		return e.Stop(snap)
	case domain.ActionRemove:
		return e.RemoveAll(snap, req.Targets)
	default:
		return e.Rename(snap, req.Title)
	}
}

func (e *Engine) touch(s *domain.Session) {
	s.UpdatedAt = e.clock.Now().UTC()
}

// Stop moves the session to its terminal state. Teams and seed are preserved.
func (e *Engine) Stop(snap domain.Snapshot) (*Result, error) {
	if snap.Session.Status == domain.StatusStopped {
		return nil, domain.ErrSessionClosed
	}
	next := snap.Clone()
	next.Session.Status = domain.StatusStopped
	e.touch(&next.Session)
	return &Result{Next: next}, nil
}

func (e *Engine) Rename(snap domain.Snapshot, title string) (*Result, error) {
	if snap.Session.Status == domain.StatusStopped {
		return nil, domain.ErrSessionClosed
	}
	next := snap.Clone()
	next.Session.Title = NormalizeTitle(title)
	e.touch(&next.Session)
	return &Result{Next: next}, nil
}

// NormalizeTitle trims the title and caps it at MaxTitleLength runes.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		title = strings.TrimSpace(string([]rune(title)[:MaxTitleLength]))
	}
	return title
}
