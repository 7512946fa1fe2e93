package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nbleicher/vc-dash-sub000/api"
	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/nbleicher/vc-dash-sub000/metrics"
	"github.com/nbleicher/vc-dash-sub000/store/postgres"
	"github.com/nbleicher/vc-dash-sub000/store/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// =============================================================================
// SERVE
// =============================================================================

func serveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the freeze scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer a.closeStore(ctx, store)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := api.NewHandler(store, a.settings, a.log)
	sched := api.NewFreezeScheduler(floor.NewFreezer(store, a.settings), a.log, metrics.NewJobs(reg))
	sched.CheckInterval = a.cfg.Floor.FreezeInterval
	handler.UseScheduler(sched)

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: a.cfg.HTTP.Origins(),
		HTTPMetrics:    metrics.NewHTTP(reg),
		Gatherer:       reg,
	})

	server := &http.Server{
		Addr:         a.cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info(a.log.WithField(ctx, "addr", server.Addr), "server.starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		a.log.Info(a.log.WithField(ctx, "signal", sig.String()), "server.shutting_down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info(ctx, "server.stopped")
	return nil
}

// =============================================================================
// FREEZE
// =============================================================================

func freezeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "freeze",
		Short: "Run one freeze pass and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer a.closeStore(ctx, store)

			res, err := floor.NewFreezer(store, a.settings).Run(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

// =============================================================================
// SEED
// =============================================================================

func seedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo agents when the store has none",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer a.closeStore(ctx, store)

			agents, err := store.Agents().Get(ctx)
			if err != nil {
				return err
			}
			if len(agents) > 0 {
				a.log.Info(a.log.WithField(ctx, "agents", len(agents)), "seed.skipped")
				return nil
			}
			now := a.settings.Clock.Now().UTC()
			if _, err := store.Agents().ReplaceAll(ctx, []floor.Agent{
				{ID: "agent_1", Name: "Alex", Active: true, CreatedAt: now},
				{ID: "agent_2", Name: "Jordan", Active: true, CreatedAt: now},
			}); err != nil {
				return err
			}
			a.log.Info(a.log.WithField(ctx, "agents", 2), "seed.completed")
			return nil
		},
	}
}

// =============================================================================
// IMPORT
// =============================================================================

func importCommand(a *app) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "import-sqlite",
		Short: "Copy every collection from a sqlite file into Postgres",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !a.cfg.DB.UsePostgres() {
				return errors.New("import-sqlite needs VCDASH_DATABASE_URL")
			}
			if _, err := os.Stat(from); err != nil {
				return fmt.Errorf("sqlite source: %w", err)
			}

			src, err := sqlite.New(ctx, from)
			if err != nil {
				return err
			}
			defer a.closeStore(ctx, src)

			dst, err := postgres.New(ctx, a.cfg.DB.URL, postgresOptions(a.cfg.DB))
			if err != nil {
				return err
			}
			defer a.closeStore(ctx, dst)

			if err := floor.CopyState(ctx, src, dst); err != nil {
				return err
			}
			a.log.Info(a.log.WithField(ctx, "from", from), "import.completed")
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "./data/vc_dash.sqlite", "sqlite database to read")
	return cmd
}
