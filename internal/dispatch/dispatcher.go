// Package dispatch moves analysis work off the request path. Submissions
// enqueue a job in the SQLite queue; a Worker drains it and a Sweeper expires
// sessions whose analysis never finished.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kalambet/doomclock/internal/analysis"
	"github.com/kalambet/doomclock/internal/storage"
)

// JobAnalyzeSession is the queue type for one pipeline run.
const JobAnalyzeSession = "analyze_session"

type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

type analyzePayload struct {
	SessionID string           `json:"session_id"`
	Profile   analysis.Profile `json:"profile"`
}

// Dispatcher hands sessions to the worker without waiting for them.
type Dispatcher struct {
	jobs JobEnqueuer
}

func NewDispatcher(jobs JobEnqueuer) *Dispatcher {
	return &Dispatcher{jobs: jobs}
}

// Dispatch enqueues one analysis run. The job is attempted once; a failed run
// is already recorded on the session and is never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, profile analysis.Profile) error {
	payload, err := json.Marshal(analyzePayload{SessionID: sessionID, Profile: profile})
	if err != nil {
		return fmt.Errorf("encoding analyze payload: %w", err)
	}
	err = d.jobs.EnqueueJob(ctx, storage.Job{
		ID:          uuid.NewString(),
		Type:        JobAnalyzeSession,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	})
	if err != nil {
		return fmt.Errorf("dispatching session %s: %w", sessionID, err)
	}
	return nil
}
