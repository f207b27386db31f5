package app

import (
	"context"
	"log/slog"
	"time"
)

const sweepTimeout = 30 * time.Second

// Lease grants the right to run the sweep to one replica at a time.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type RetentionConfig struct {
	// Retention is the maximum session age, measured from creation.
	Retention time.Duration
	Interval  time.Duration
	// Lease is optional. Without one every replica sweeps.
	Lease Lease
}

// SweepExpired deletes sessions older than retention and reports how many went away.
func (s *Service) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	cutoff := s.clock.Now().Add(-retention)
	n, err := s.coord.Sweep(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.opts.Metrics.Swept(n)
	return n, nil
}

// StartRetention runs the sweep every cfg.Interval until Stop is called.
func (s *Service) StartRetention(cfg RetentionConfig) {
	ticker := s.clock.NewTicker(cfg.Interval)
	s.wg.Go(func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				s.sweepOnce(cfg)
			case <-s.stopCh:
				if cfg.Lease != nil {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					if err := cfg.Lease.Release(ctx); err != nil {
						slog.Warn("Failed to release retention lease", "error", err)
					}
					cancel()
				}
				return
			}
		}
	})
	slog.Info("Retention sweep started", "retention", cfg.Retention, "interval", cfg.Interval)
}

func (s *Service) sweepOnce(cfg RetentionConfig) {
	ctx := context.Background()
	if cfg.Lease != nil {
		leader, err := cfg.Lease.Acquire(ctx)
		if err != nil {
			slog.Error("Retention lease error", "error", err)
			return
		}
		if !leader {
			slog.Debug("Skipping retention sweep, not leader")
			return
		}
	}

	n, err := s.SweepExpired(ctx, cfg.Retention)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("Retention sweep deleted sessions", "count", n)
	}
}

// Stop ends the retention loop and waits for an in-flight sweep to finish.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}
