package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/teamdraft/internal/adapter/memory"
	"github.com/pscheid92/teamdraft/internal/adapter/metrics"
	"github.com/pscheid92/teamdraft/internal/document"
	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/draft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDocs wraps a real store and lets tests override single calls.
type mockDocs struct {
	inner domain.DocumentStore

	loadFn func(ctx context.Context, id string) (*domain.Document, error)
	casFn  func(ctx context.Context, id string, expected int64, next domain.Document) (bool, error)
}

func (m *mockDocs) Create(ctx context.Context, doc domain.Document) error {
	return m.inner.Create(ctx, doc)
}

func (m *mockDocs) Load(ctx context.Context, id string) (*domain.Document, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, id)
	}
	return m.inner.Load(ctx, id)
}

func (m *mockDocs) CompareAndSwap(ctx context.Context, id string, expected int64, next domain.Document) (bool, error) {
	if m.casFn != nil {
		return m.casFn(ctx, id, expected, next)
	}
	return m.inner.CompareAndSwap(ctx, id, expected, next)
}

func (m *mockDocs) Delete(ctx context.Context, id string) error {
	return m.inner.Delete(ctx, id)
}

type optimisticFixture struct {
	clock  *clockwork.FakeClock
	store  *memory.DocumentStore
	docs   *mockDocs
	engine *draft.Engine
}

func newOptimisticFixture(t *testing.T) *optimisticFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	store := memory.NewDocumentStore()
	f := &optimisticFixture{
		clock:  clock,
		store:  store,
		docs:   &mockDocs{inner: store},
		engine: draft.NewEngine(draft.Policy{}, clock, func() string { return "abc123" }),
	}
	snap := f.engine.NewSession("s1", scope, "owner", "Draft", true)
	require.NoError(t, store.Create(context.Background(), domain.Document{Revision: 1, Snapshot: snap}))
	return f
}

func (f *optimisticFixture) coordinator(attempts int) *Optimistic {
	return NewOptimistic(f.docs, f.engine, f.clock, OptimisticConfig{MaxAttempts: attempts, Backoff: noWait}, Options{})
}

func (f *optimisticFixture) holdLock(t *testing.T, by string, ttl time.Duration) {
	t.Helper()
	ctx := context.Background()
	doc, err := f.store.Load(ctx, "s1")
	require.NoError(t, err)
	doc.Lock = &domain.Lock{By: by, Until: f.clock.Now().Add(ttl)}
	ok, err := f.store.CompareAndSwap(ctx, "s1", doc.Revision, domain.Document{Revision: doc.Revision + 1, Snapshot: doc.Snapshot, Lock: doc.Lock})
	require.NoError(t, err)
	require.True(t, ok)
}

func joinReq(user string) domain.Request {
	return domain.Request{SessionID: "s1", Scope: scope, ActorID: user, Action: domain.ActionJoin}
}

func TestOptimistic_ReleasesLockAndAdvancesRevision(t *testing.T) {
	f := newOptimisticFixture(t)
	out, err := f.coordinator(3).Mutate(context.Background(), joinReq("u1"))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, []string{"owner", "u1"}, out.View.Players)

	doc, err := f.store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, doc.Lock)
	assert.Equal(t, int64(3), doc.Revision, "claim and commit each bump the revision")
	assert.Equal(t, int64(2), doc.Snapshot.Slots[1].ID)
}

func TestOptimistic_HeldLockExhaustsAttempts(t *testing.T) {
	f := newOptimisticFixture(t)
	f.holdLock(t, "rival", DefaultLockTTL)

	_, err := f.coordinator(4).Mutate(context.Background(), joinReq("u1"))
	assert.ErrorIs(t, err, domain.ErrTooManyConcurrentAttempts)
	assert.Equal(t, domain.ReasonTooManyConcurrentAttempts, domain.ReasonOf(err))
}

func TestOptimistic_RecordsBackoffPerRetry(t *testing.T) {
	f := newOptimisticFixture(t)
	f.holdLock(t, "rival", DefaultLockTTL)
	reg := prometheus.NewRegistry()
	m := metrics.NewDraftMetrics(reg)
	coord := NewOptimistic(f.docs, f.engine, f.clock, OptimisticConfig{MaxAttempts: 4, Backoff: noWait}, Options{Metrics: m})

	_, err := coord.Mutate(context.Background(), joinReq("u1"))
	require.ErrorIs(t, err, domain.ErrTooManyConcurrentAttempts)

	assert.Equal(t, uint64(3), backoffSamples(t, reg), "the exhausting attempt does not back off")
}

func backoffSamples(t *testing.T, reg *prometheus.Registry) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var n uint64
	for _, f := range families {
		if f.GetName() != "teamdraft_draft_retry_backoff_seconds" {
			continue
		}
		for _, sample := range f.GetMetric() {
			n += sample.GetHistogram().GetSampleCount()
		}
	}
	return n
}

func TestOptimistic_ExpiredLockIsTakenOver(t *testing.T) {
	f := newOptimisticFixture(t)
	f.holdLock(t, "crashed", DefaultLockTTL)
	f.clock.Advance(DefaultLockTTL)

	out, err := f.coordinator(1).Mutate(context.Background(), joinReq("u1"))
	require.NoError(t, err)
	assert.Len(t, out.View.Players, 2)
}

func TestOptimistic_WaitsForReleaseWithBackoff(t *testing.T) {
	f := newOptimisticFixture(t)
	f.holdLock(t, "rival", DefaultLockTTL)
	coord := NewOptimistic(f.docs, f.engine, f.clock, OptimisticConfig{}, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := coord.Mutate(context.Background(), joinReq("u1"))
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	// wakes the waiter, which then finds the rival's lock expired
	f.clock.Advance(DefaultLockTTL)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("mutation never completed")
	}
}

func TestOptimistic_LostClaimRetries(t *testing.T) {
	f := newOptimisticFixture(t)
	calls := 0
	f.docs.casFn = func(ctx context.Context, id string, expected int64, next domain.Document) (bool, error) {
		calls++
		if calls == 1 {
			return false, nil
		}
		return f.store.CompareAndSwap(ctx, id, expected, next)
	}

	out, err := f.coordinator(3).Mutate(context.Background(), joinReq("u1"))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
}

func TestOptimistic_FailedVerificationRetries(t *testing.T) {
	f := newOptimisticFixture(t)
	loads := 0
	f.docs.loadFn = func(ctx context.Context, id string) (*domain.Document, error) {
		loads++
		doc, err := f.store.Load(ctx, id)
		if err == nil && loads == 2 {
			doc.Lock = &domain.Lock{By: "rival", Until: f.clock.Now().Add(time.Second)}
		}
		return doc, err
	}

	out, err := f.coordinator(3).Mutate(context.Background(), joinReq("u1"))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
}

func TestOptimistic_PermissionDeniedAbortsImmediately(t *testing.T) {
	f := newOptimisticFixture(t)
	calls := 0
	f.docs.casFn = func(context.Context, string, int64, domain.Document) (bool, error) {
		calls++
		return false, fmt.Errorf("missing permissions (50013): %w", domain.ErrPermissionDenied)
	}

	_, err := f.coordinator(10).Mutate(context.Background(), joinReq("u1"))
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, 1, calls)
}

func TestOptimistic_RejectionReleasesClaim(t *testing.T) {
	f := newOptimisticFixture(t)
	_, err := f.coordinator(3).Mutate(context.Background(), joinReq("owner"))
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)

	doc, err := f.store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, doc.Lock)
	assert.Len(t, doc.Snapshot.Slots, 1)
}

func TestOptimistic_StoreErrorSurfaces(t *testing.T) {
	f := newOptimisticFixture(t)
	f.docs.loadFn = func(context.Context, string) (*domain.Document, error) {
		return nil, domain.StoreUnavailable("load", errors.New("connection refused"))
	}

	_, err := f.coordinator(3).Mutate(context.Background(), joinReq("u1"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestOptimistic_OverEditorStore(t *testing.T) {
	clock := clockwork.NewFakeClock()
	engine := draft.NewEngine(draft.Policy{}, clock, func() string { return "abc123" })
	coord := NewOptimistic(document.NewEditorStore(memory.NewEditor()), engine, clock, OptimisticConfig{Backoff: noWait}, Options{})
	ctx := context.Background()

	_, err := coord.Create(ctx, engine.NewSession("1300000000000000000", scope, "owner", "Draft", true))
	require.NoError(t, err)
	for _, u := range []string{"u1", "u2", "u3"} {
		clock.Advance(time.Second)
		_, err := coord.Mutate(ctx, domain.Request{SessionID: "1300000000000000000", Scope: scope, ActorID: u, Action: domain.ActionJoin})
		require.NoError(t, err)
	}

	out, err := coord.Mutate(ctx, domain.Request{SessionID: "1300000000000000000", Scope: scope, ActorID: "owner", Action: domain.ActionFinish})
	require.NoError(t, err)
	assert.Len(t, out.View.TeamA, 2)
	assert.Len(t, out.View.TeamB, 2)
	assert.Empty(t, out.View.Bench)
}

func TestAssignSlotIDs(t *testing.T) {
	snap := assignSlotIDs(domain.Snapshot{Slots: []domain.Slot{{ID: 4}, {ID: 0}, {ID: 2}, {ID: 0}}})
	ids := []int64{}
	for _, s := range snap.Slots {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{4, 5, 2, 6}, ids)
}
