package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/teamdraft/internal/coordinator"
	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/draft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testScope = domain.Scope{GuildID: "g1", ChannelID: "c1"}

var testNow = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newSnapshot(id string, users ...string) domain.Snapshot {
	snap := domain.Snapshot{Session: domain.Session{
		ID:        id,
		Scope:     testScope,
		OwnerID:   "owner",
		Title:     "Draft",
		Status:    domain.StatusCollecting,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}}
	for i, u := range users {
		snap.Slots = append(snap.Slots, domain.Slot{UserID: u, JoinedAt: testNow.Add(time.Duration(i) * time.Second)})
	}
	snap.Session.RosterVersion = int64(len(users))
	return snap
}

func userIDs(slots []domain.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.UserID
	}
	return out
}

func TestSessionStore_CreateAndRead(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := context.Background()

	created, err := store.CreateSession(ctx, newSnapshot("s1", "u1", "u2"))
	require.NoError(t, err)
	require.Len(t, created.Slots, 2)
	assert.NotZero(t, created.Slots[0].ID)
	assert.Less(t, created.Slots[0].ID, created.Slots[1].ID)

	got, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, testScope, got.Session.Scope)
	assert.Equal(t, domain.StatusCollecting, got.Session.Status)
	assert.Nil(t, got.Session.Seed)
	assert.Equal(t, int64(2), got.Session.RosterVersion)
	assert.True(t, got.Session.CreatedAt.Equal(testNow))
	assert.Equal(t, []string{"u1", "u2"}, userIDs(got.Slots))
	assert.Equal(t, domain.TeamNone, got.Slots[0].Team)
}

func TestSessionStore_CreateDuplicate(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := context.Background()

	_, err := store.CreateSession(ctx, newSnapshot("s1"))
	require.NoError(t, err)

	_, err = store.CreateSession(ctx, newSnapshot("s1"))
	assert.ErrorIs(t, err, domain.ErrSessionExists)
}

func TestSessionStore_ReadMissing(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))

	_, err := store.Read(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_TxWritesCommit(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := context.Background()

	created, err := store.CreateSession(ctx, newSnapshot("s1", "u1", "u2"))
	require.NoError(t, err)

	seed := "abc123"
	err = store.WithTx(ctx, func(tx domain.SessionTx) error {
		session, err := tx.LockedRead(ctx, "s1")
		if err != nil {
			return err
		}
		session.Status = domain.StatusFinished
		session.Seed = &seed
		session.GenerationCount = 1
		session.LastActiveSignature = "u1,u2,u3"
		session.RosterVersion = 3
		if err := tx.UpdateFields(ctx, *session); err != nil {
			return err
		}
		if err := tx.SetSlotTeam(ctx, created.Slots[0].ID, domain.TeamA); err != nil {
			return err
		}
		if err := tx.DeleteSlot(ctx, created.Slots[1].ID); err != nil {
			return err
		}
		_, err = tx.InsertSlot(ctx, domain.Slot{SessionID: "s1", UserID: "u3", JoinedAt: testNow.Add(time.Minute), Team: domain.TeamBench})
		return err
	})
	require.NoError(t, err)

	got, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, got.Session.Status)
	require.NotNil(t, got.Session.Seed)
	assert.Equal(t, "abc123", *got.Session.Seed)
	assert.Equal(t, "u1,u2,u3", got.Session.LastActiveSignature)
	assert.Equal(t, int64(3), got.Session.RosterVersion)
	assert.Equal(t, []string{"u1", "u3"}, userIDs(got.Slots))
	assert.Equal(t, domain.TeamA, got.Slots[0].Team)
	assert.Equal(t, domain.TeamBench, got.Slots[1].Team)
}

func TestSessionStore_TxRollsBackOnError(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := context.Background()

	_, err := store.CreateSession(ctx, newSnapshot("s1", "u1"))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(tx domain.SessionTx) error {
		if _, err := tx.LockedRead(ctx, "s1"); err != nil {
			return err
		}
		if _, err := tx.InsertSlot(ctx, domain.Slot{SessionID: "s1", UserID: "u2", JoinedAt: testNow}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, userIDs(got.Slots))
}

func TestSessionStore_JoinOrderIgnoresCallerClock(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := context.Background()

	_, err := store.CreateSession(ctx, newSnapshot("s1", "u1"))
	require.NoError(t, err)

	// Replicas with skewed clocks: the second writer is an hour behind the first.
	skewed := []time.Time{testNow.Add(time.Hour), testNow.Add(-time.Hour)}
	var stamped []time.Time
	for i, user := range []string{"u2", "u3"} {
		err := store.WithTx(ctx, func(tx domain.SessionTx) error {
			if _, err := tx.LockedRead(ctx, "s1"); err != nil {
				return err
			}
			slot, err := tx.InsertSlot(ctx, domain.Slot{SessionID: "s1", UserID: user, JoinedAt: skewed[i]})
			if err != nil {
				return err
			}
			stamped = append(stamped, slot.JoinedAt)
			return nil
		})
		require.NoError(t, err)
	}

	got, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, userIDs(got.Slots))
	require.Len(t, stamped, 2)
	assert.True(t, stamped[0].Before(stamped[1]))
	assert.True(t, got.Slots[2].JoinedAt.Equal(stamped[1]))
}

func TestSessionStore_LockedReadMissing(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx domain.SessionTx) error {
		_, err := tx.LockedRead(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, domain.ReasonNotFound, domain.ReasonOf(err))
}

func TestSessionStore_DeleteSessionCascades(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSessionStore(pool)
	ctx := context.Background()

	_, err := store.CreateSession(ctx, newSnapshot("s1", "u1", "u2"))
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx domain.SessionTx) error {
		if _, err := tx.LockedRead(ctx, "s1"); err != nil {
			return err
		}
		return tx.DeleteSession(ctx, "s1")
	})
	require.NoError(t, err)

	var slots int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM draft_slots").Scan(&slots))
	assert.Zero(t, slots)
}

func TestSessionStore_DeleteOlderThan(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := context.Background()

	old := newSnapshot("old", "u1")
	old.Session.CreatedAt = testNow.Add(-8 * 24 * time.Hour)
	_, err := store.CreateSession(ctx, old)
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, newSnapshot("fresh", "u1"))
	require.NoError(t, err)

	n, err := store.DeleteOlderThan(ctx, testNow.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Read(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = store.Read(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSessionStore_RowLockBlocksSecondWriter(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := context.Background()

	_, err := store.CreateSession(ctx, newSnapshot("s1"))
	require.NoError(t, err)

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithTx(ctx, func(tx domain.SessionTx) error {
			if _, err := tx.LockedRead(ctx, "s1"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	err = store.WithTx(waitCtx, func(tx domain.SessionTx) error {
		_, err := tx.LockedRead(waitCtx, "s1")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	close(release)
	require.NoError(t, <-done)
}

func TestPessimisticCoordinator_ConcurrentJoins(t *testing.T) {
	store := NewSessionStore(setupTestDB(t))
	ctx := context.Background()

	clock := clockwork.NewRealClock()
	engine := draft.NewEngine(draft.Policy{}, clock, nil)
	coord := coordinator.NewPessimistic(store, engine, coordinator.Options{})

	_, err := coord.Create(ctx, engine.NewSession("s1", testScope, "owner", "Draft", false))
	require.NoError(t, err)

	const joiners = 20
	var wg sync.WaitGroup
	for i := range joiners {
		wg.Go(func() {
			_, err := coord.Mutate(ctx, domain.Request{
				SessionID: "s1",
				Scope:     testScope,
				ActorID:   fmt.Sprintf("u%02d", i),
				Action:    domain.ActionJoin,
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.Slots, joiners)
	assert.Equal(t, int64(joiners), got.Session.RosterVersion)
}
