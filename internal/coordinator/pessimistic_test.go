package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/draft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	tx         *mockTx
	committed  bool
	rolledBack bool
}

func (m *mockStore) CreateSession(context.Context, domain.Snapshot) (*domain.Snapshot, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStore) WithTx(_ context.Context, fn func(tx domain.SessionTx) error) error {
	if err := fn(m.tx); err != nil {
		m.rolledBack = true
		return err
	}
	m.committed = true
	return nil
}

func (m *mockStore) Read(context.Context, string) (*domain.Snapshot, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStore) DeleteOlderThan(context.Context, time.Time) (int, error) {
	return 0, fmt.Errorf("not implemented")
}

type mockTx struct {
	session domain.Session
	slots   []domain.Slot
	calls   []string

	insertSlotFn func(slot domain.Slot) (domain.Slot, error)
}

func (m *mockTx) LockedRead(_ context.Context, id string) (*domain.Session, error) {
	m.calls = append(m.calls, "lock "+id)
	s := m.session
	return &s, nil
}

func (m *mockTx) ListSlotsOrdered(context.Context, string) ([]domain.Slot, error) {
	return append([]domain.Slot(nil), m.slots...), nil
}

func (m *mockTx) UpdateFields(_ context.Context, s domain.Session) error {
	m.calls = append(m.calls, fmt.Sprintf("update status=%s version=%d", s.Status, s.RosterVersion))
	return nil
}

func (m *mockTx) InsertSlot(_ context.Context, slot domain.Slot) (domain.Slot, error) {
	if m.insertSlotFn != nil {
		return m.insertSlotFn(slot)
	}
	m.calls = append(m.calls, "insert "+slot.UserID+" "+string(slot.Team))
	slot.ID = 100
	return slot, nil
}

func (m *mockTx) DeleteSlot(_ context.Context, id int64) error {
	m.calls = append(m.calls, fmt.Sprintf("delete %d", id))
	return nil
}

func (m *mockTx) SetSlotTeam(_ context.Context, id int64, team domain.Team) error {
	m.calls = append(m.calls, fmt.Sprintf("team %d %s", id, team))
	return nil
}

func (m *mockTx) DeleteSession(_ context.Context, id string) error {
	m.calls = append(m.calls, "drop "+id)
	return nil
}

func lockedFixture(status domain.Status, teams ...domain.Team) *mockStore {
	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	tx := &mockTx{session: domain.Session{ID: "s1", Scope: scope, OwnerID: "owner", Status: status, RosterVersion: int64(len(teams))}}
	for i, team := range teams {
		tx.slots = append(tx.slots, domain.Slot{
			ID: int64(i + 1), SessionID: "s1", UserID: fmt.Sprintf("u%d", i+1), JoinedAt: t0.Add(time.Duration(i) * time.Second), Team: team,
		})
	}
	return &mockStore{tx: tx}
}

func newPessimistic(store domain.SessionStore, opts Options) *Pessimistic {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	return NewPessimistic(store, draft.NewEngine(draft.Policy{}, clock, func() string { return "abc123" }), opts)
}

func TestPessimistic_JoinWritesInsertAndFields(t *testing.T) {
	store := lockedFixture(domain.StatusFinished, domain.TeamA, domain.TeamB)
	out, err := newPessimistic(store, Options{}).Mutate(context.Background(), joinReq("u9"))
	require.NoError(t, err)

	assert.True(t, store.committed)
	assert.Equal(t, []string{"lock s1", "insert u9 BENCH", "update status=finished version=3"}, store.tx.calls)
	assert.Equal(t, []string{"u9"}, out.View.Bench)
	assert.Equal(t, 1, out.Attempts)
}

func TestPessimistic_LeaveDeletesOnlyOneSlot(t *testing.T) {
	store := lockedFixture(domain.StatusFinished, domain.TeamA, domain.TeamB, domain.TeamBench)
	_, err := newPessimistic(store, Options{}).Mutate(context.Background(),
		domain.Request{SessionID: "s1", Scope: scope, ActorID: "u2", Action: domain.ActionLeave})
	require.NoError(t, err)
	assert.Equal(t, []string{"lock s1", "delete 2", "update status=finished version=4"}, store.tx.calls)
}

func TestPessimistic_FinishWritesTeamChanges(t *testing.T) {
	store := lockedFixture(domain.StatusCollecting, domain.TeamNone, domain.TeamNone, domain.TeamNone)
	out, err := newPessimistic(store, Options{}).Mutate(context.Background(),
		domain.Request{SessionID: "s1", Scope: scope, ActorID: "owner", Action: domain.ActionFinish})
	require.NoError(t, err)

	assert.Contains(t, store.tx.calls, "team 3 BENCH")
	assert.Len(t, store.tx.calls, 5, "lock, three team writes, update")
	assert.Equal(t, []string{"u3"}, out.View.Bench)
}

func TestPessimistic_StopWithDeletion(t *testing.T) {
	store := lockedFixture(domain.StatusCollecting, domain.TeamNone)
	out, err := newPessimistic(store, Options{DeleteOnStop: true}).Mutate(context.Background(),
		domain.Request{SessionID: "s1", Scope: scope, ActorID: "owner", Action: domain.ActionStop})
	require.NoError(t, err)

	assert.True(t, out.Deleted)
	assert.Equal(t, []string{"lock s1", "drop s1"}, store.tx.calls)
	assert.Equal(t, []string{"u1"}, out.View.Players)
}

func TestPessimistic_WriteFailureRollsBack(t *testing.T) {
	store := lockedFixture(domain.StatusCollecting)
	boom := errors.New("connection reset")
	store.tx.insertSlotFn = func(domain.Slot) (domain.Slot, error) {
		return domain.Slot{}, domain.StoreUnavailable("insert slot", boom)
	}

	_, err := newPessimistic(store, Options{}).Mutate(context.Background(), joinReq("u1"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.True(t, store.rolledBack)
	assert.False(t, store.committed)
}

func TestPessimistic_RejectionRollsBack(t *testing.T) {
	store := lockedFixture(domain.StatusStopped, domain.TeamNone)
	_, err := newPessimistic(store, Options{}).Mutate(context.Background(), joinReq("u5"))
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.True(t, store.rolledBack)
	assert.Equal(t, []string{"lock s1"}, store.tx.calls)
}
