package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/doomclock/internal/agent"
	"github.com/kalambet/doomclock/internal/storage"
)

// Failure reasons recorded on a session moved to error.
const (
	ReasonMalformedResult = "malformed_result"
	ReasonAgent           = "agent_error"
	ReasonStore           = "store_error"
	ReasonInternal        = "internal_error"
)

// failTimeout bounds the best-effort error write after the run's own context
// may already be gone.
const failTimeout = 5 * time.Second

// ResultWriter persists the children of a session, one upsert per item.
type ResultWriter interface {
	PutSkillRisk(ctx context.Context, r storage.SkillRisk) error
	PutCareerCard(ctx context.Context, c storage.CareerCard) error
}

// Finalizer moves a session out of analyzing.
type Finalizer interface {
	Complete(ctx context.Context, sessionID string, horizon float64) error
	Fail(ctx context.Context, sessionID string, reason string)
}

// Pipeline turns one submitted profile into a stored analysis.
type Pipeline struct {
	agent    agent.Client
	results  ResultWriter
	sessions Finalizer
	logger   *zap.Logger
}

// NewPipeline wires a Pipeline. A nil logger discards output.
func NewPipeline(client agent.Client, results ResultWriter, sessions Finalizer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		agent:    client,
		results:  results,
		sessions: sessions,
		logger:   logger.Named("analysis"),
	}
}

// Run executes the analysis for sessionID. It returns nothing: the outcome is
// visible only through the session's status and its child collections. Any
// failure, panics included, ends with the session in error.
func (p *Pipeline) Run(ctx context.Context, sessionID string, profile Profile) {
	log := p.logger.With(zap.String("session_id", sessionID))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis panicked", zap.Any("panic", r), zap.Stack("stack"))
			p.fail(ctx, sessionID, ReasonInternal)
		}
	}()

	log.Info("analysis started", zap.String("role", profile.Role))

	if err := p.run(ctx, sessionID, profile, log); err != nil {
		reason := failureReason(err)
		log.Error("analysis failed", zap.String("reason", reason), zap.Error(err))
		p.fail(ctx, sessionID, reason)
		return
	}

	log.Info("analysis completed", zap.Duration("took", time.Since(start)))
}

func (p *Pipeline) run(ctx context.Context, sessionID string, profile Profile, log *zap.Logger) error {
	raw, err := p.agent.Invoke(ctx, BuildPrompt(profile))
	if err != nil {
		return err
	}
	log.Debug("agent responded", zap.Int("bytes", len(raw)))

	parsed, err := ParseResult(raw)
	if err != nil {
		return err
	}
	result, err := parsed.Normalize()
	if err != nil {
		return err
	}

	if err := p.persist(ctx, sessionID, result); err != nil {
		return err
	}
	log.Debug("results persisted",
		zap.Int("skill_risks", len(result.SkillRisks)),
		zap.Int("career_cards", len(result.CareerCards)),
	)

	return p.sessions.Complete(ctx, sessionID, result.Horizon)
}

// persist writes both collections concurrently. Items are independent
// upserts; a partial write leaves the session analyzing.
func (p *Pipeline) persist(ctx context.Context, sessionID string, result Result) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, r := range result.SkillRisks {
			r.SessionID = sessionID
			if err := p.results.PutSkillRisk(gctx, r); err != nil {
				return fmt.Errorf("saving skill risk %q: %w", r.SkillName, err)
			}
		}
		return nil
	})
	g.Go(func() error {
		for _, c := range result.CareerCards {
			c.SessionID = sessionID
			if err := p.results.PutCareerCard(gctx, c); err != nil {
				return fmt.Errorf("saving career card %d: %w", c.CardIndex, err)
			}
		}
		return nil
	})
	return g.Wait()
}

func (p *Pipeline) fail(ctx context.Context, sessionID, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()
	p.sessions.Fail(ctx, sessionID, reason)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedResult):
		return ReasonMalformedResult
	case errors.Is(err, agent.ErrAgent):
		return ReasonAgent
	case errors.Is(err, storage.ErrStore):
		return ReasonStore
	default:
		return ReasonInternal
	}
}
