package draft

import (
	"slices"
	"strings"

	"github.com/pscheid92/teamdraft/internal/domain"
)

// Draw assigns every slot to A, B or the bench using a fresh seed.
func (e *Engine) Draw(snap domain.Snapshot) (*Result, error) {
	return e.DrawWithSeed(snap, e.seeds())
}

// DrawWithSeed is Draw with a caller supplied seed. Any earlier assignment, bench included,
// is discarded first so redraws always start from the full roster.
func (e *Engine) DrawWithSeed(snap domain.Snapshot, seed string) (*Result, error) {
	if snap.Session.Status == domain.StatusStopped {
		return nil, domain.ErrSessionClosed
	}
	if len(snap.Slots) < 2 {
		return nil, domain.ErrInsufficientPlayers
	}

	next := snap.Clone()
	pool := make([]int, 0, len(next.Slots))
	for i := range next.Slots {
		next.Slots[i].Team = domain.TeamNone
		pool = append(pool, i)
	}

	if len(pool)%2 == 1 {
		latest := 0
		for i := range next.Slots {
			if joinedAfter(next.Slots[i], next.Slots[latest]) {
				latest = i
			}
		}
		next.Slots[latest].Team = domain.TeamBench
		pool = slices.DeleteFunc(pool, func(i int) bool { return i == latest })
	}

	ids := make([]string, len(pool))
	for k, i := range pool {
		ids[k] = next.Slots[i].UserID
	}
	sig := ActiveSignature(ids)
	s := &next.Session
	if s.LastActiveSignature != "" && s.LastActiveSignature != sig {
		s.GenerationCount = 0
	}
	s.GenerationCount++
	s.LastActiveSignature = sig

	shuffled := Shuffle(pool, seed)
	mid := len(shuffled) / 2
	for k, i := range shuffled {
		if k < mid {
			next.Slots[i].Team = domain.TeamA
		} else {
			next.Slots[i].Team = domain.TeamB
		}
	}

	s.Seed = &seed
	s.Status = domain.StatusFinished
	e.touch(s)
	return &Result{Next: next}, nil
}

// ActiveSignature identifies a pool independent of join order.
func ActiveSignature(userIDs []string) string {
	sorted := slices.Clone(userIDs)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}
