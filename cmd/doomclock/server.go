package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/doomclock/internal/api"
	"github.com/kalambet/doomclock/internal/config"
	"github.com/kalambet/doomclock/internal/logging"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the analysis worker and expiry sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		noWorker, _ := cmd.Flags().GetBool("no-worker")
		return withApp(func(ctx context.Context, a *app) error {
			return runServe(ctx, a, !noWorker)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the analysis worker and expiry sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(runWorkers)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve results and the guestbook to MCP clients over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(runMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("no-worker", false, "serve HTTP only; run `doomclock worker` separately")
}

// withApp loads config, builds the logger and the app, and runs fn until
// SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing storage", zap.Error(err))
		}
	}()

	return fn(ctx, a)
}

func runServe(ctx context.Context, a *app, withWorker bool) error {
	a.checkAgent(ctx)

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	if withWorker {
		g.Go(func() error {
			a.worker.Run(gctx)
			return nil
		})
		g.Go(func() error {
			a.sweeper.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		a.logger.Info("doomclock listening", zap.String("addr", addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runWorkers(ctx context.Context, a *app) error {
	a.checkAgent(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.sweeper.Run(gctx)
		return nil
	})
	a.logger.Info("worker started", zap.Duration("poll_interval", a.cfg.Worker.PollInterval))
	return g.Wait()
}

// runMCP serves over stdin and stdout, so every log line must stay on stderr.
func runMCP(ctx context.Context, a *app) error {
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Results:   a.machine,
		Guestbook: a.guestbook,
		Version:   version,
	})
	a.logger.Info("MCP server started (stdio transport)")
	err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
