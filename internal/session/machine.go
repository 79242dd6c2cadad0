// Package session owns the analysis session lifecycle. A session starts in
// analyzing and moves exactly once, to completed or to error.
package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/doomclock/internal/storage"
)

// ErrInvalidTransition is returned when a session has already left analyzing.
var ErrInvalidTransition = errors.New("invalid session transition")

// Store is the persistence the state machine needs.
type Store interface {
	CreateSession(ctx context.Context, s storage.Session) error
	GetSession(ctx context.Context, id string) (storage.Session, error)
	TransitionSession(ctx context.Context, id string, to storage.Status, horizon *float64, reason string) error
	ListSkillRisks(ctx context.Context, sessionID string) ([]storage.SkillRisk, error)
	ListCareerCards(ctx context.Context, sessionID string) ([]storage.CareerCard, error)
}

// Outcome is what a poller sees. Children are only filled when completed.
type Outcome struct {
	SessionID   string               `json:"session_id"`
	Status      storage.Status       `json:"status"`
	Horizon     *float64             `json:"horizon,omitempty"`
	SkillRisks  []storage.SkillRisk  `json:"skill_risks,omitempty"`
	CareerCards []storage.CareerCard `json:"career_cards,omitempty"`
}

type Machine struct {
	store  Store
	logger *zap.Logger
}

// NewMachine creates a Machine. A nil logger discards output.
func NewMachine(store Store, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{store: store, logger: logger.Named("session")}
}

// Start records a new session in analyzing. Resubmitting an id fails with
// storage.ErrSessionExists.
func (m *Machine) Start(ctx context.Context, s storage.Session) error {
	s.Status = storage.StatusAnalyzing
	s.Horizon = nil
	return m.store.CreateSession(ctx, s)
}

// Complete flips analyzing to completed and records horizon in the same
// conditional write.
func (m *Machine) Complete(ctx context.Context, id string, horizon float64) error {
	err := m.store.TransitionSession(ctx, id, storage.StatusCompleted, &horizon, "")
	if errors.Is(err, storage.ErrConditionFailed) {
		return fmt.Errorf("completing session %s: %w", id, ErrInvalidTransition)
	}
	return err
}

// Fail moves the session to error. There is nobody left to report to, so
// failures are logged and dropped.
func (m *Machine) Fail(ctx context.Context, id string, reason string) {
	err := m.store.TransitionSession(ctx, id, storage.StatusError, nil, reason)
	switch {
	case err == nil:
		m.logger.Info("session failed", zap.String("session_id", id), zap.String("reason", reason))
	case errors.Is(err, storage.ErrConditionFailed):
		m.logger.Warn("session already terminal, error not recorded",
			zap.String("session_id", id), zap.String("reason", reason))
	default:
		m.logger.Error("recording session error",
			zap.String("session_id", id), zap.String("reason", reason), zap.Error(err))
	}
}

// Read returns the session's current outcome. A completed session is joined
// with its skill risks and career cards; an errored one never is.
func (m *Machine) Read(ctx context.Context, id string) (Outcome, error) {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{SessionID: s.ID, Status: s.Status}
	if s.Status != storage.StatusCompleted {
		return out, nil
	}
	out.Horizon = s.Horizon

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		risks, err := m.store.ListSkillRisks(gctx, id)
		out.SkillRisks = risks
		return err
	})
	g.Go(func() error {
		cards, err := m.store.ListCareerCards(gctx, id)
		out.CareerCards = cards
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, fmt.Errorf("joining results for session %s: %w", id, err)
	}
	return out, nil
}
