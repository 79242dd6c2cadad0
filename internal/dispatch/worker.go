package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/doomclock/internal/analysis"
	"github.com/kalambet/doomclock/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	GetSession(ctx context.Context, id string) (storage.Session, error)
}

// Runner executes one analysis. It reports nothing back; outcomes land on
// the session.
type Runner interface {
	Run(ctx context.Context, sessionID string, profile analysis.Profile)
}

// Worker processes analyze_session jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	runner Runner
	poll   time.Duration
	logger *zap.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, runner Runner, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:  store,
		runner: runner,
		poll:   pollInterval,
		logger: logger.Named("worker"),
	}
}

// Run polls for jobs until ctx is cancelled. A job already claimed runs to
// completion before Run returns.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("worker iteration failed", zap.Error(err))
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single analyze_session job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobAnalyzeSession})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	// The claim is ours now; finish it even if the worker is stopping.
	jobCtx := context.WithoutCancel(ctx)

	if err := w.processJob(jobCtx, job); err != nil {
		w.logger.Warn("job failed", zap.String("job_id", job.ID), zap.Error(err))
		if failErr := w.store.FailJob(jobCtx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return true, nil
	}

	if err := w.store.CompleteJob(jobCtx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload analyzePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.SessionID == "" {
		return errors.New("payload has no session_id")
	}

	// The sweeper may have settled the session while the job sat in the queue.
	sess, err := w.store.GetSession(ctx, payload.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("session %s not found", payload.SessionID)
	}
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}
	if sess.Status != storage.StatusAnalyzing {
		w.logger.Info("session already settled, skipping analysis",
			zap.String("job_id", job.ID), zap.String("session_id", payload.SessionID), zap.String("status", string(sess.Status)))
		return nil
	}

	w.logger.Debug("running analysis", zap.String("job_id", job.ID), zap.String("session_id", payload.SessionID))
	w.runner.Run(ctx, payload.SessionID, payload.Profile)
	return nil
}
