package draft

import (
	"slices"

	"github.com/pscheid92/teamdraft/internal/domain"
)

// Join appends a slot for userID. In a finished session the newcomer goes to the smaller
// team, or to the bench when both teams are even.
func (e *Engine) Join(snap domain.Snapshot, userID string) (*Result, error) {
	if snap.Session.Status == domain.StatusStopped {
		return nil, domain.ErrSessionClosed
	}
	if !e.policy.AllowDuplicateJoin && slices.ContainsFunc(snap.Slots, func(s domain.Slot) bool { return s.UserID == userID }) {
		return nil, domain.ErrAlreadyJoined
	}

	team := domain.TeamNone
	if snap.Session.Status == domain.StatusFinished {
		team = joinTeam(snap.Slots)
	}

	next := snap.Clone()
	next.Slots = append(next.Slots, domain.Slot{
		SessionID: snap.Session.ID,
		UserID:    userID,
		JoinedAt:  e.clock.Now().UTC(),
		Team:      team,
	})
	next.Session.RosterVersion++
	e.touch(&next.Session)
	return &Result{Next: next}, nil
}

func joinTeam(slots []domain.Slot) domain.Team {
	a, b := 0, 0
	for _, s := range slots {
		switch s.Team {
		case domain.TeamA:
			a++
		case domain.TeamB:
			b++
		}
	}
	switch {
	case a < b:
		return domain.TeamA
	case b < a:
		return domain.TeamB
	default:
		return domain.TeamBench
	}
}

// Leave removes a single slot of userID. Team slots go before bench slots, and within the
// same rank the most recently joined slot is removed. Remaining assignments are untouched.
func (e *Engine) Leave(snap domain.Snapshot, userID string) (*Result, error) {
	if snap.Session.Status == domain.StatusStopped {
		return nil, domain.ErrSessionClosed
	}

	victim := -1
	for i, s := range snap.Slots {
		if s.UserID != userID {
			continue
		}
		if victim < 0 || leavesBefore(s, snap.Slots[victim]) {
			victim = i
		}
	}
	if victim < 0 {
		return nil, domain.ErrNotInSession
	}

	next := snap.Clone()
	next.Slots = slices.Delete(next.Slots, victim, victim+1)
	next.Session.RosterVersion++
	e.touch(&next.Session)
	return &Result{Next: next}, nil
}

func leaveRank(t domain.Team) int {
	switch t {
	case domain.TeamA, domain.TeamB:
		return 0
	case domain.TeamBench:
		return 1
	default:
		return 2
	}
}

func leavesBefore(a, b domain.Slot) bool {
	if ra, rb := leaveRank(a.Team), leaveRank(b.Team); ra != rb {
		return ra < rb
	}
	return joinedAfter(a, b)
}

// joinedAfter orders slots by (JoinedAt, ID) descending.
func joinedAfter(a, b domain.Slot) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.After(b.JoinedAt)
	}
	return a.ID > b.ID
}

// RemoveAll drops every slot of each target. Targets are deduplicated in order.
func (e *Engine) RemoveAll(snap domain.Snapshot, targets []string) (*Result, error) {
	if snap.Session.Status == domain.StatusStopped {
		return nil, domain.ErrSessionClosed
	}

	res := &Result{}
	next := snap.Clone()
	seen := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		if _, dup := seen[target]; dup || target == "" {
			continue
		}
		seen[target] = struct{}{}

		before := len(next.Slots)
		next.Slots = slices.DeleteFunc(next.Slots, func(s domain.Slot) bool { return s.UserID == target })
		removed := before - len(next.Slots)
		if removed == 0 {
			res.NotFound = append(res.NotFound, target)
			continue
		}
		res.Removed = append(res.Removed, target)
		next.Session.RosterVersion += int64(removed)
	}

	if len(res.Removed) == 0 {
		return nil, domain.ErrNotInSession
	}
	e.touch(&next.Session)
	res.Next = next
	return res, nil
}
