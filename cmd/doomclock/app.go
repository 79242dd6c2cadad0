package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kalambet/doomclock/internal/agent"
	"github.com/kalambet/doomclock/internal/analysis"
	"github.com/kalambet/doomclock/internal/api"
	"github.com/kalambet/doomclock/internal/config"
	"github.com/kalambet/doomclock/internal/dispatch"
	"github.com/kalambet/doomclock/internal/guestbook"
	"github.com/kalambet/doomclock/internal/session"
	"github.com/kalambet/doomclock/internal/storage"
	"github.com/kalambet/doomclock/internal/storage/redisstore"
)

// app is the wired object graph shared by serve, worker and mcp.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	store      *storage.Store
	guestbook  guestbook.Store
	agent      agent.Client
	machine    *session.Machine
	pipeline   *analysis.Pipeline
	dispatcher *dispatch.Dispatcher
	worker     *dispatch.Worker
	sweeper    *dispatch.Sweeper

	closers []func() error
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	a.guestbook = store

	if cfg.Storage.GuestbookBackend == "redis" {
		rs, err := redisstore.Open(ctx, cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening redis guestbook: %w", err)
		}
		a.guestbook = rs
		a.closers = append(a.closers, rs.Close)
	}

	client, err := agent.New(agent.Options{
		Provider: cfg.Agent.Provider,
		BaseURL:  cfg.Agent.BaseURL,
		Model:    cfg.Agent.Model,
		APIKey:   cfg.Agent.APIKey,
		Timeout:  cfg.Agent.Timeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.agent = client

	a.machine = session.NewMachine(store, logger)
	a.pipeline = analysis.NewPipeline(client, store, a.machine, logger)
	a.dispatcher = dispatch.NewDispatcher(store)
	a.worker = dispatch.NewWorker(store, a.pipeline, cfg.Worker.PollInterval, logger)
	a.sweeper = dispatch.NewSweeper(store, a.machine, cfg.Worker.StaleAfter, cfg.Worker.SweepInterval, logger)

	logger.Info("app ready",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("guestbook_backend", cfg.Storage.GuestbookBackend),
		zap.String("agent_provider", cfg.Agent.Provider),
		zap.String("agent_model", cfg.Agent.Model),
	)
	return a, nil
}

func (a *app) handler() http.Handler {
	return api.NewHandler(api.Deps{
		Sessions:   a.machine,
		Dispatcher: a.dispatcher,
		Guestbook:  a.guestbook,
		Logger:     a.logger,
	})
}

// checkAgent warns when a local Ollama is configured but not answering.
// Sessions submitted meanwhile still fail cleanly with agent_error.
func (a *app) checkAgent(ctx context.Context) {
	o, ok := a.agent.(*agent.OllamaClient)
	if !ok {
		return
	}
	if !o.IsRunning(ctx) {
		a.logger.Warn("ollama not reachable, analyses will fail until it is",
			zap.String("base_url", a.cfg.Agent.BaseURL))
	}
}

// Close releases stores in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
