package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReasonExpired is recorded on sessions the sweeper gives up on.
const ReasonExpired = "expired"

const sweepBatch = 100

type StaleLister interface {
	StaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type Failer interface {
	Fail(ctx context.Context, sessionID string, reason string)
}

// Sweeper moves sessions stuck in analyzing to error once they are older
// than staleAfter. It uses the same conditional transition as the pipeline,
// so a run that finishes first always wins.
type Sweeper struct {
	sessions   StaleLister
	machine    Failer
	staleAfter time.Duration
	interval   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewSweeper creates a Sweeper. Non-positive durations fall back to 10m
// staleness and a 1m interval.
func NewSweeper(sessions StaleLister, machine Failer, staleAfter, interval time.Duration, logger *zap.Logger) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		sessions:   sessions,
		machine:    machine,
		staleAfter: staleAfter,
		interval:   interval,
		logger:     logger.Named("sweeper"),
		now:        time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce expires every stale session and returns how many it tried.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	total := 0
	// Fail swallows store errors, so a session can come back unchanged.
	seen := make(map[string]struct{})
	for {
		ids, err := s.sessions.StaleSessions(ctx, cutoff, sweepBatch)
		if err != nil {
			return total, fmt.Errorf("listing stale sessions: %w", err)
		}
		fresh := 0
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			s.machine.Fail(ctx, id, ReasonExpired)
			fresh++
		}
		total += fresh
		if len(ids) < sweepBatch || fresh == 0 {
			break
		}
	}
	if total > 0 {
		s.logger.Info("expired stale sessions", zap.Int("count", total))
	}
	return total, nil
}
