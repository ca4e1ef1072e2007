package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Blackbeard96/summer-games/pkg/logger"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("starting Summer Games PP server",
				logger.String("version", cfg.App.Version),
				logger.String("addr", cfg.HTTP.Addr),
			)
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()
			return a.run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "override HTTP_ADDR")
	return cmd
}

// run serves until ctx is cancelled or the listener fails, then shuts down.
func (a *app) run(ctx context.Context) error {
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	errCh := a.server.StartAsync()
	a.log.Info("Summer Games PP server is running", logger.String("storage", a.stores.driver))

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			a.log.Error("HTTP server error", logger.Err(err))
			serveErr = err
		}
	}

	a.log.Info("starting graceful shutdown...", logger.Duration("timeout", a.cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
	defer cancel()

	if a.scheduler != nil {
		if err := a.scheduler.Stop(); err != nil {
			a.log.Warn("scheduler stop failed", logger.Err(err))
		}
	}
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		if serveErr == nil {
			serveErr = err
		}
	}

	if serveErr != nil {
		a.log.Warn("shutdown completed with errors")
		return serveErr
	}
	a.log.Info("shutdown completed successfully")
	return nil
}
