package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/teamdraft/internal/domain"
)

const uniqueViolation = "23505"

const sessionColumns = `id, guild_id, channel_id, owner_id, title, status, seed,
	generation_count, roster_version, last_active_sig, created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SessionStore implements domain.SessionStore on top of PostgreSQL. Mutations hold a
// row lock on the drafts row for the lifetime of the transaction.
type SessionStore struct {
	pool *pgxpool.Pool
}

var _ domain.SessionStore = (*SessionStore)(nil)

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) CreateSession(ctx context.Context, snap domain.Snapshot) (*domain.Snapshot, error) {
	out := snap.Clone()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ses := out.Session
		_, err := tx.Exec(ctx, `
			INSERT INTO drafts (`+sessionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			ses.ID, ses.Scope.GuildID, ses.Scope.ChannelID, ses.OwnerID, ses.Title, string(ses.Status), ses.Seed,
			ses.GenerationCount, ses.RosterVersion, ses.LastActiveSignature, ses.CreatedAt, ses.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", domain.ErrSessionExists, ses.ID)
			}
			return err
		}

		for i := range out.Slots {
			out.Slots[i].SessionID = ses.ID
			stored, err := insertSlot(ctx, tx, out.Slots[i])
			if err != nil {
				return err
			}
			out.Slots[i] = stored
		}
		return nil
	})
	if err != nil {
		return nil, domain.StoreUnavailable("create session", err)
	}
	return &out, nil
}

func (s *SessionStore) Read(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	session, err := getSession(ctx, s.pool, sessionID, false)
	if err != nil {
		return nil, domain.StoreUnavailable("read session", err)
	}
	slots, err := listSlots(ctx, s.pool, sessionID)
	if err != nil {
		return nil, domain.StoreUnavailable("read slots", err)
	}
	return &domain.Snapshot{Session: *session, Slots: slots}, nil
}

// DeleteOlderThan removes sessions created before cutoff. Slots go with them via ON DELETE CASCADE.
func (s *SessionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM drafts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, domain.StoreUnavailable("delete old sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *SessionStore) WithTx(ctx context.Context, fn func(tx domain.SessionTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.StoreUnavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&sessionTx{tx: tx}); err != nil {
		return domain.StoreUnavailable("mutate", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.StoreUnavailable("commit", err)
	}
	return nil
}

type sessionTx struct {
	tx pgx.Tx
}

func (t *sessionTx) LockedRead(ctx context.Context, sessionID string) (*domain.Session, error) {
	return getSession(ctx, t.tx, sessionID, true)
}

func (t *sessionTx) ListSlotsOrdered(ctx context.Context, sessionID string) ([]domain.Slot, error) {
	return listSlots(ctx, t.tx, sessionID)
}

func (t *sessionTx) UpdateFields(ctx context.Context, s domain.Session) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE drafts
		SET title = $2, status = $3, seed = $4, generation_count = $5,
		    roster_version = $6, last_active_sig = $7, updated_at = $8
		WHERE id = $1`,
		s.ID, s.Title, string(s.Status), s.Seed, s.GenerationCount, s.RosterVersion, s.LastActiveSignature, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (t *sessionTx) InsertSlot(ctx context.Context, slot domain.Slot) (domain.Slot, error) {
	return insertSlot(ctx, t.tx, slot)
}

func (t *sessionTx) DeleteSlot(ctx context.Context, slotID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM draft_slots WHERE id = $1`, slotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("slot %d not found", slotID)
	}
	return nil
}

func (t *sessionTx) SetSlotTeam(ctx context.Context, slotID int64, team domain.Team) error {
	tag, err := t.tx.Exec(ctx, `UPDATE draft_slots SET team = $2 WHERE id = $1`, slotID, teamValue(team))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("slot %d not found", slotID)
	}
	return nil
}

func (t *sessionTx) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM drafts WHERE id = $1`, sessionID)
	return err
}

func getSession(ctx context.Context, q querier, sessionID string, forUpdate bool) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM drafts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		s      domain.Session
		status string
	)
	err := q.QueryRow(ctx, query, sessionID).Scan(
		&s.ID, &s.Scope.GuildID, &s.Scope.ChannelID, &s.OwnerID, &s.Title, &status, &s.Seed,
		&s.GenerationCount, &s.RosterVersion, &s.LastActiveSignature, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	s.Status = domain.ParseStatus(status)
	return &s, nil
}

func listSlots(ctx context.Context, q querier, sessionID string) ([]domain.Slot, error) {
	rows, err := q.Query(ctx, `
		SELECT id, draft_id, user_id, joined_at, team
		FROM draft_slots
		WHERE draft_id = $1
		ORDER BY joined_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}

	slots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Slot, error) {
		var (
			slot domain.Slot
			team *string
		)
		if err := row.Scan(&slot.ID, &slot.SessionID, &slot.UserID, &slot.JoinedAt, &team); err != nil {
			return domain.Slot{}, err
		}
		if team != nil {
			slot.Team = domain.ParseTeam(*team)
		}
		return slot, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan slots: %w", err)
	}
	if slots == nil {
		slots = []domain.Slot{}
	}
	return slots, nil
}

// insertSlot stamps joined_at with the database clock at insert time. Inserts run under the
// session row lock, so join order follows lock order.
func insertSlot(ctx context.Context, q querier, slot domain.Slot) (domain.Slot, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO draft_slots (draft_id, user_id, joined_at, team)
		VALUES ($1, $2, clock_timestamp(), $3)
		RETURNING id, joined_at`,
		slot.SessionID, slot.UserID, teamValue(slot.Team)).Scan(&slot.ID, &slot.JoinedAt)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("failed to insert slot: %w", err)
	}
	return slot, nil
}

func teamValue(t domain.Team) *string {
	if t == domain.TeamNone {
		return nil
	}
	v := string(t)
	return &v
}
