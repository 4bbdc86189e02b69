package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpserver "github.com/fyrsmithlabs/assistantd/internal/http"
	"github.com/fyrsmithlabs/assistantd/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		Long: `Run the HTTP API and, unless disabled, the reminder scheduler.

Examples:
  # Listen on the configured address
  assistantd serve

  # Override the port through the environment
  ASSISTANT_SERVER_PORT=8080 assistantd serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	deps := httpserver.Deps{
		Chat:      a.chat,
		Tasks:     a.db.Tasks(),
		Reminders: a.db.Reminders(),
		Memories:  a.memories,
		Tracing:   a.telemetry,
	}
	if a.sqlite != nil {
		deps.DB = a.sqlite
	}
	srv, err := httpserver.NewServer(deps, a.logger.Named("http"), &httpserver.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return a.scrubber.WatchAllowlist(gctx) })
	if a.cfg.Scheduler.Enabled {
		sched := scheduler.New(a.db.Reminders(), a.publisher, a.cfg.Scheduler, a.logger.Underlying().Named("scheduler"))
		g.Go(func() error { return sched.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
