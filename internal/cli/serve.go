package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/factgraph/internal/engine"
	"github.com/lazypower/factgraph/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with scheduled decay and pruning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}
}

func (a *app) runServe(cmd *cobra.Command) error {
	logger, err := a.logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := a.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := db.Migrate(ctx, false)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if report.Applied > 0 {
		logger.Info("schema updated", zap.Int("steps_applied", report.Applied))
	}

	// Pruning needs a memory directory; without one only decay is scheduled.
	ws, err := a.resolveWorkspace()
	if err != nil {
		return err
	}
	if info, err := os.Stat(filepath.Join(ws, "memory")); err != nil || !info.IsDir() {
		logger.Warn("no memory directory, log pruning disabled", zap.String("workspace", ws))
		ws = ""
	}

	eng, err := engine.New(db, engine.Options{
		DecaySchedule: a.cfg.Schedule.Decay,
		PruneSchedule: a.cfg.Schedule.Prune,
		Workspace:     ws,
		PreviewLimit:  a.cfg.Prune.PreviewLimit,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	eng.Start(ctx)
	defer eng.Stop()

	srv, err := server.New(db, VersionString(), server.Options{
		Logger:         logger,
		RateLimitRPS:   a.cfg.Server.RateLimitRPS,
		RateLimitBurst: a.cfg.Server.RateLimitBurst,
		CacheSize:      a.cfg.Resolver.CacheSize,
	})
	if err != nil {
		return err
	}

	addr := a.cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("factgraph serving",
			zap.String("addr", addr),
			zap.String("db", db.Path),
			zap.Strings("jobs", eng.Jobs()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
