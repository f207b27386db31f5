package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pscheid92/teamdraft/internal/domain"
)

type sessionRecord struct {
	// sem is the row lock, held from LockedRead until commit or rollback.
	sem     chan struct{}
	gone    bool
	session domain.Session
	slots   []domain.Slot
}

// SessionStore is an in-memory domain.SessionStore. Transactions stage their writes and
// publish them on commit, so readers never observe a half-applied mutation.
type SessionStore struct {
	mu         sync.Mutex
	sessions   map[string]*sessionRecord
	lastSlotID int64
}

var _ domain.SessionStore = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*sessionRecord)}
}

func (s *SessionStore) CreateSession(_ context.Context, snap domain.Snapshot) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := snap.Session.ID
	if _, exists := s.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionExists, id)
	}

	out := snap.Clone()
	for i := range out.Slots {
		s.lastSlotID++
		out.Slots[i].ID = s.lastSlotID
		out.Slots[i].SessionID = id
	}
	rec := &sessionRecord{sem: make(chan struct{}, 1), session: out.Session, slots: out.Slots}
	s.sessions[id] = rec

	created := out.Clone()
	return &created, nil
}

func (s *SessionStore) Read(_ context.Context, sessionID string) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	snap := domain.Snapshot{Session: rec.session, Slots: rec.slots}.Clone()
	sortSlots(snap.Slots)
	return &snap, nil
}

func (s *SessionStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.sessions {
		if rec.session.CreatedAt.Before(cutoff) {
			rec.gone = true
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) WithTx(ctx context.Context, fn func(tx domain.SessionTx) error) error {
	tx := &sessionTx{store: s}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *SessionStore) nextSlotID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSlotID++
	return s.lastSlotID
}

type sessionTx struct {
	store   *SessionStore
	rec     *sessionRecord
	staged  domain.Snapshot
	deleted bool
	done    bool
}

func (tx *sessionTx) LockedRead(ctx context.Context, sessionID string) (*domain.Session, error) {
	if tx.rec != nil {
		if tx.staged.Session.ID != sessionID {
			return nil, fmt.Errorf("memory tx already holds session %s", tx.staged.Session.ID)
		}
		session := tx.staged.Session
		return &session, nil
	}

	tx.store.mu.Lock()
	rec, ok := tx.store.sessions[sessionID]
	tx.store.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	select {
	case rec.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, domain.StoreUnavailable("lock session", ctx.Err())
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if rec.gone {
		<-rec.sem
		return nil, domain.ErrSessionNotFound
	}
	tx.rec = rec
	tx.staged = domain.Snapshot{Session: rec.session, Slots: rec.slots}.Clone()
	session := tx.staged.Session
	return &session, nil
}

func (tx *sessionTx) held(sessionID string) error {
	if tx.rec == nil || tx.staged.Session.ID != sessionID {
		return fmt.Errorf("session %s is not locked by this transaction", sessionID)
	}
	return nil
}

func (tx *sessionTx) ListSlotsOrdered(_ context.Context, sessionID string) ([]domain.Slot, error) {
	if err := tx.held(sessionID); err != nil {
		return nil, err
	}
	slots := slices.Clone(tx.staged.Slots)
	sortSlots(slots)
	return slots, nil
}

func (tx *sessionTx) UpdateFields(_ context.Context, session domain.Session) error {
	if err := tx.held(session.ID); err != nil {
		return err
	}
	tx.staged.Session = domain.Snapshot{Session: session}.Clone().Session
	return nil
}

func (tx *sessionTx) InsertSlot(_ context.Context, slot domain.Slot) (domain.Slot, error) {
	if err := tx.held(slot.SessionID); err != nil {
		return domain.Slot{}, err
	}
	slot.ID = tx.store.nextSlotID()
	tx.staged.Slots = append(tx.staged.Slots, slot)
	return slot, nil
}

func (tx *sessionTx) DeleteSlot(_ context.Context, slotID int64) error {
	i := slices.IndexFunc(tx.staged.Slots, func(s domain.Slot) bool { return s.ID == slotID })
	if tx.rec == nil || i < 0 {
		return fmt.Errorf("slot %d not found", slotID)
	}
	tx.staged.Slots = slices.Delete(tx.staged.Slots, i, i+1)
	return nil
}

func (tx *sessionTx) SetSlotTeam(_ context.Context, slotID int64, team domain.Team) error {
	i := slices.IndexFunc(tx.staged.Slots, func(s domain.Slot) bool { return s.ID == slotID })
	if tx.rec == nil || i < 0 {
		return fmt.Errorf("slot %d not found", slotID)
	}
	tx.staged.Slots[i].Team = team
	return nil
}

func (tx *sessionTx) DeleteSession(_ context.Context, sessionID string) error {
	if err := tx.held(sessionID); err != nil {
		return err
	}
	tx.deleted = true
	return nil
}

func (tx *sessionTx) commit() error {
	if tx.rec == nil {
		return nil
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	if tx.rec.gone {
		return nil
	}
	if tx.deleted {
		tx.rec.gone = true
		delete(tx.store.sessions, tx.staged.Session.ID)
		return nil
	}
	tx.rec.session = tx.staged.Session
	tx.rec.slots = tx.staged.Slots
	return nil
}

func (tx *sessionTx) release() {
	if tx.rec != nil && !tx.done {
		tx.done = true
		<-tx.rec.sem
	}
}

func sortSlots(slots []domain.Slot) {
	slices.SortStableFunc(slots, func(a, b domain.Slot) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}
