package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/teamdraft/internal/adapter/metrics"
	"github.com/pscheid92/teamdraft/internal/domain"
	"github.com/pscheid92/teamdraft/internal/draft"
	"github.com/pscheid92/teamdraft/internal/platform/correlation"
	"golang.org/x/sync/singleflight"
)

const (
	// MaxRemoveTargets bounds one moderation request.
	MaxRemoveTargets = 5

	defaultMutationTimeout = 15 * time.Second
	readTimeout            = 5 * time.Second
)

type Options struct {
	AutoJoinOwner   bool
	MutationTimeout time.Duration
	Metrics         *metrics.DraftMetrics
}

// Service is the application layer. It is the only component that talks to the coordinator
// and the engine together.
type Service struct {
	coord  domain.Coordinator
	engine *draft.Engine
	clock  clockwork.Clock
	opts   Options

	// NewID generates session ids when the caller does not supply one.
	NewID func() string

	reads singleflight.Group

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewService(coord domain.Coordinator, engine *draft.Engine, clock clockwork.Clock, opts Options) *Service {
	if opts.MutationTimeout <= 0 {
		opts.MutationTimeout = defaultMutationTimeout
	}
	s := &Service{
		coord:  coord,
		engine: engine,
		clock:  clock,
		opts:   opts,
		stopCh: make(chan struct{}),
	}
	s.NewID = func() string { return NewSessionID(s.clock.Now()) }
	return s
}

// NewSessionID returns a numeric id in the same shape as a chat message id, so the
// session reference parser accepts it.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("%d%06d", now.UnixMilli(), rand.N(1_000_000))
}

type StartRequest struct {
	// SessionID is the id of the message hosting the draft. Empty means generate one.
	SessionID string
	Scope     domain.Scope
	OwnerID   string
	Title     string
}

// Start creates a collecting session. The owner joins it when AutoJoinOwner is set.
func (s *Service) Start(ctx context.Context, req StartRequest) (*domain.View, error) {
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		id = s.NewID()
	}

	ctx, cancel := context.WithTimeout(correlation.WithSessionID(ctx, id), s.opts.MutationTimeout)
	defer cancel()

	snap := s.engine.NewSession(id, req.Scope, req.OwnerID, req.Title, s.opts.AutoJoinOwner)
	created, err := s.coord.Create(ctx, snap)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Draft started", "owner_id", req.OwnerID, "title", created.Session.Title)
	view := draft.Project(*created)
	return &view, nil
}

// Dispatch applies one action under the mutation timeout. The timeout covers the whole
// retry budget of the optimistic protocol.
func (s *Service) Dispatch(ctx context.Context, req domain.Request) (*domain.Outcome, error) {
	if !req.Action.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAction, req.Action)
	}

	ctx, cancel := context.WithTimeout(correlation.WithSessionID(ctx, req.SessionID), s.opts.MutationTimeout)
	defer cancel()

	out, err := s.coord.Mutate(ctx, req)
	if err != nil {
		if domain.IsRejection(err) {
			slog.DebugContext(ctx, "Action rejected", "action", req.Action, "actor_id", req.ActorID, "reason", domain.ReasonOf(err))
		} else {
			slog.ErrorContext(ctx, "Action failed", "action", req.Action, "actor_id", req.ActorID, "error", err)
		}
		return nil, err
	}

	s.reads.Forget(req.SessionID)
	slog.InfoContext(ctx, "Action applied",
		"action", req.Action,
		"actor_id", req.ActorID,
		"status", out.View.Status,
		"roster_version", out.View.RosterVersion,
		"attempts", out.Attempts,
		"deleted", out.Deleted,
	)
	return out, nil
}

// RemovePlayers is the owner moderation action. Targets are deduplicated and capped. An empty
// target list still goes through the coordinator so the session checks run first.
func (s *Service) RemovePlayers(ctx context.Context, sessionID string, scope domain.Scope, actorID string, targets []string) (*domain.Outcome, error) {
	seen := make(map[string]struct{}, len(targets))
	uniq := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	if len(uniq) > MaxRemoveTargets {
		uniq = uniq[:MaxRemoveTargets]
	}

	return s.Dispatch(ctx, domain.Request{
		SessionID: sessionID,
		Scope:     scope,
		ActorID:   actorID,
		Action:    domain.ActionRemove,
		Targets:   uniq,
	})
}

func (s *Service) Rename(ctx context.Context, sessionID string, scope domain.Scope, actorID, title string) (*domain.Outcome, error) {
	return s.Dispatch(ctx, domain.Request{
		SessionID: sessionID,
		Scope:     scope,
		ActorID:   actorID,
		Action:    domain.ActionRename,
		Title:     title,
	})
}

// Get returns the display view without taking the session lock. A session outside scope
// is reported as not found. Concurrent reads of the same session share one store round
// trip, which runs detached from any single caller's cancellation.
func (s *Service) Get(ctx context.Context, sessionID string, scope domain.Scope) (*domain.View, error) {
	ch := s.reads.DoChan(sessionID, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readTimeout)
		defer cancel()
		return s.coord.Read(readCtx, sessionID)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, domain.StoreUnavailable("read session", ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}

	snap := res.Val.(*domain.Snapshot)
	if snap.Session.Scope != scope {
		return nil, domain.ErrSessionNotFound
	}
	view := draft.Project(*snap)
	return &view, nil
}
