package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/draft"
)

// Pessimistic runs each mutation in one transaction holding the session's row lock.
// Concurrent callers on the same session block until the holder commits or rolls back.
type Pessimistic struct {
	store  domain.SessionStore
	engine *draft.Engine
	opts   Options
}

var _ domain.Coordinator = (*Pessimistic)(nil)

func NewPessimistic(store domain.SessionStore, engine *draft.Engine, opts Options) *Pessimistic {
	return &Pessimistic{store: store, engine: engine, opts: opts}
}

func (p *Pessimistic) Create(ctx context.Context, snap domain.Snapshot) (*domain.Snapshot, error) {
	created, err := p.store.CreateSession(ctx, snap)
	if err != nil {
		return nil, err
	}
	p.opts.Metrics.Created()
	return created, nil
}

func (p *Pessimistic) Read(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return p.store.Read(ctx, sessionID)
}

func (p *Pessimistic) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	return p.store.DeleteOlderThan(ctx, cutoff)
}

func (p *Pessimistic) Mutate(ctx context.Context, req domain.Request) (*domain.Outcome, error) {
	start := time.Now()
	var out *domain.Outcome

	err := p.store.WithTx(ctx, func(tx domain.SessionTx) error {
		session, err := tx.LockedRead(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if session.Scope != req.Scope {
			return domain.ErrSessionNotFound
		}
		slots, err := tx.ListSlotsOrdered(ctx, req.SessionID)
		if err != nil {
			return err
		}

		prev := domain.Snapshot{Session: *session, Slots: slots}
		res, err := p.engine.Apply(prev, req)
		if err != nil {
			return err
		}

		if stopsAndDeletes(p.opts, req) {
			if err := tx.DeleteSession(ctx, req.SessionID); err != nil {
				return err
			}
			out = outcomeOf(res, 1)
			out.Deleted = true
			return nil
		}

		next, err := persistDiff(ctx, tx, prev, res.Next)
		if err != nil {
			return err
		}
		res.Next = next
		out = outcomeOf(res, 1)
		return nil
	})

	p.opts.Metrics.ObserveMutation(ProtocolPessimistic, req.Action, err, 1, time.Since(start))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// persistDiff writes the difference between prev and next and returns next with the ids
// assigned to inserted slots.
func persistDiff(ctx context.Context, tx domain.SessionTx, prev, next domain.Snapshot) (domain.Snapshot, error) {
	kept := make(map[int64]domain.Team, len(next.Slots))
	for _, s := range next.Slots {
		if s.ID != 0 {
			kept[s.ID] = s.Team
		}
	}

	for _, s := range prev.Slots {
		team, ok := kept[s.ID]
		switch {
		case !ok:
			if err := tx.DeleteSlot(ctx, s.ID); err != nil {
				return next, fmt.Errorf("delete slot %d: %w", s.ID, err)
			}
		case team != s.Team:
			if err := tx.SetSlotTeam(ctx, s.ID, team); err != nil {
				return next, fmt.Errorf("set team of slot %d: %w", s.ID, err)
			}
		}
	}

	for i := range next.Slots {
		if next.Slots[i].ID != 0 {
			continue
		}
		stored, err := tx.InsertSlot(ctx, next.Slots[i])
		if err != nil {
			return next, fmt.Errorf("insert slot: %w", err)
		}
		next.Slots[i] = stored
	}

	if err := tx.UpdateFields(ctx, next.Session); err != nil {
		return next, fmt.Errorf("update session: %w", err)
	}
	return next, nil
}
