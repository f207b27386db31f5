package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/draft"
	"github.com/pscheid92/teamdraft/internal/platform/retry"
)

const (
	DefaultLockTTL     = 6 * time.Second
	DefaultMaxAttempts = 10
)

// errContended marks an attempt that lost the race for the document.
var errContended = errors.New("document claimed by another writer")

// DefaultBackoff waits min(900ms, 120ms + attempt*120ms) plus up to 120ms of jitter.
func DefaultBackoff() retry.Backoff {
	return retry.Linear(120*time.Millisecond, 120*time.Millisecond, 900*time.Millisecond, 120*time.Millisecond)
}

type OptimisticConfig struct {
	LockTTL     time.Duration
	MaxAttempts int
	Backoff     retry.Backoff
	// Token issues the claim id for one mutation. Defaults to a random UUID.
	Token func() string
}

// Optimistic claims the session document with a soft lock written through compare-and-swap,
// re-reads to confirm the claim, applies the change and releases the lock in the final swap.
type Optimistic struct {
	docs   domain.DocumentStore
	engine *draft.Engine
	clock  clockwork.Clock
	cfg    OptimisticConfig
	opts   Options
}

var _ domain.Coordinator = (*Optimistic)(nil)

func NewOptimistic(docs domain.DocumentStore, engine *draft.Engine, clock clockwork.Clock, cfg OptimisticConfig, opts Options) *Optimistic {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.Token == nil {
		cfg.Token = uuid.NewString
	}
	return &Optimistic{docs: docs, engine: engine, clock: clock, cfg: cfg, opts: opts}
}

func (o *Optimistic) Create(ctx context.Context, snap domain.Snapshot) (*domain.Snapshot, error) {
	snap = assignSlotIDs(snap.Clone())
	if err := o.docs.Create(ctx, domain.Document{Revision: 1, Snapshot: snap}); err != nil {
		return nil, err
	}
	o.opts.Metrics.Created()
	return &snap, nil
}

func (o *Optimistic) Read(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	doc, err := o.docs.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &doc.Snapshot, nil
}

// Sweep deletes old documents when the store needs explicit retention.
func (o *Optimistic) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	sweeper, ok := o.docs.(domain.Sweeper)
	if !ok {
		return 0, nil
	}
	return sweeper.DeleteOlderThan(ctx, cutoff)
}

func (o *Optimistic) Mutate(ctx context.Context, req domain.Request) (*domain.Outcome, error) {
	start := time.Now()
	token := o.cfg.Token()
	attempts := 0

	policy := retry.Policy{
		MaxAttempts: o.cfg.MaxAttempts,
		Backoff:     o.cfg.Backoff,
		Clock:       o.clock,
		OnRetry: func(attempt int, _ error, wait time.Duration) {
			slog.DebugContext(ctx, "Retrying contended mutation",
				"session_id", req.SessionID, "action", req.Action, "attempt", attempt, "backoff", wait)
			o.opts.Metrics.Backoff(ProtocolOptimistic, wait)
		},
	}
	classify := func(err error) retry.Action {
		if errors.Is(err, errContended) {
			return retry.Retry
		}
		return retry.Stop
	}

	out, err := retry.Do(ctx, policy, classify, func(attempt int) (*domain.Outcome, error) {
		attempts = attempt
		return o.attempt(ctx, req, token)
	})
	err = unwrapRetry(err)
	if out != nil {
		out.Attempts = attempts
	}

	o.opts.Metrics.ObserveMutation(ProtocolOptimistic, req.Action, err, attempts, time.Since(start))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Optimistic) attempt(ctx context.Context, req domain.Request, token string) (*domain.Outcome, error) {
	current, err := o.docs.Load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if current.Snapshot.Session.Scope != req.Scope {
		return nil, domain.ErrSessionNotFound
	}
	if current.Snapshot.Session.Status == domain.StatusStopped {
		return nil, domain.ErrSessionClosed
	}

	now := o.clock.Now()
	if current.Lock.Held(token, now) {
		o.opts.Metrics.Contended("claimed")
		slog.DebugContext(ctx, "Session claimed by another writer", "holder", current.Lock.By, "until", current.Lock.Until)
		return nil, errContended
	}

	claim := domain.Document{
		Revision: current.Revision + 1,
		Snapshot: current.Snapshot,
		Lock:     &domain.Lock{By: token, Until: now.Add(o.cfg.LockTTL)},
	}
	ok, err := o.docs.CompareAndSwap(ctx, req.SessionID, current.Revision, claim)
	if err != nil {
		return nil, err
	}
	if !ok {
		o.opts.Metrics.Contended("claim")
		return nil, errContended
	}

	verified, err := o.docs.Load(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !verified.Lock.Owns(token, o.clock.Now()) {
		o.opts.Metrics.Contended("verify")
		return nil, errContended
	}

	res, err := o.engine.Apply(verified.Snapshot, req)
	if err != nil {
		o.release(ctx, req.SessionID, verified)
		return nil, err
	}
	res.Next = assignSlotIDs(res.Next)

	if stopsAndDeletes(o.opts, req) {
		if err := o.docs.Delete(ctx, req.SessionID); err != nil {
			return nil, err
		}
		out := outcomeOf(res, 0)
		out.Deleted = true
		return out, nil
	}

	final := domain.Document{Revision: verified.Revision + 1, Snapshot: res.Next}
	ok, err = o.docs.CompareAndSwap(ctx, req.SessionID, verified.Revision, final)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Our claim expired and someone else took over before the write landed.
		o.opts.Metrics.Contended("commit")
		return nil, errContended
	}
	return outcomeOf(res, 0), nil
}

// release drops a claim without changing the session. Failures are left to the lock TTL.
func (o *Optimistic) release(ctx context.Context, sessionID string, held *domain.Document) {
	unlocked := domain.Document{Revision: held.Revision + 1, Snapshot: held.Snapshot}
	if _, err := o.docs.CompareAndSwap(ctx, sessionID, held.Revision, unlocked); err != nil {
		slog.WarnContext(ctx, "Failed to release session claim", "error", err)
	}
}

func unwrapRetry(err error) error {
	if err == nil {
		return nil
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return domain.ErrTooManyConcurrentAttempts
	}
	var permanent *retry.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return domain.StoreUnavailable("mutate", err)
}

// assignSlotIDs numbers new slots after the highest id in the snapshot.
func assignSlotIDs(snap domain.Snapshot) domain.Snapshot {
	var maxID int64
	for _, s := range snap.Slots {
		maxID = max(maxID, s.ID)
	}
	for i := range snap.Slots {
		if snap.Slots[i].ID == 0 {
			maxID++
			snap.Slots[i].ID = maxID
		}
	}
	return snap
}
