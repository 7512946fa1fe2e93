/*
main.go - Application entry point

PURPOSE:
  Command line for the VC dashboard backend. Every subcommand shares one
  bootstrap: .env, environment config, logger, store.

COMMANDS:
  serve          HTTP API plus the periodic freeze scheduler (default)
  freeze         one freeze pass, result printed as JSON
  seed           demo agents for an empty store
  import-sqlite  copy every collection from a sqlite file into Postgres

STORE SELECTION:
  VCDASH_DATABASE_URL set       Postgres
  VCDASH_DB_PATH=":memory:"     in-process memory store
  otherwise                     sqlite file at VCDASH_DB_PATH

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the scheduler stops, in-flight requests get
  VCDASH_SHUTDOWN_TIMEOUT to finish, then the store is closed.

SEE ALSO:
  - config/config.go: environment variables
  - api/server.go: router configuration
*/
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/nbleicher/vc-dash-sub000/config"
	"github.com/nbleicher/vc-dash-sub000/floor"
	"github.com/nbleicher/vc-dash-sub000/logger"
	"github.com/nbleicher/vc-dash-sub000/store/memory"
	"github.com/nbleicher/vc-dash-sub000/store/postgres"
	"github.com/nbleicher/vc-dash-sub000/store/sqlite"
	"github.com/spf13/cobra"
)

// app is the state shared by every subcommand after bootstrap.
type app struct {
	cfg      *config.Config
	settings floor.Settings
	log      *logger.Logger
}

func main() {
	a := &app{log: logger.New(logger.Options{ServiceName: "vc-dash"})}
	if err := rootCommand(a).ExecuteContext(context.Background()); err != nil {
		a.log.Error(context.Background(), "command failed", err)
		os.Exit(1)
	}
}

func rootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "vc-dash",
		Short:         "Sales floor metrics backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.bootstrap(cmd.Context())
		},
	}

	serve := serveCommand(a)
	root.AddCommand(serve, freezeCommand(a), seedCommand(a), importCommand(a))
	root.RunE = serve.RunE
	return root
}

func (a *app) bootstrap(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		a.log.Debug(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.settings = settings
	a.log = logger.New(logger.Options{
		ServiceName: cfg.App.ServiceName,
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	return nil
}

// openStore picks the backend from config.
func (a *app) openStore(ctx context.Context) (floor.Store, error) {
	db := a.cfg.DB
	switch {
	case db.UsePostgres():
		a.log.Info(ctx, "store.postgres")
		s, err := postgres.New(ctx, db.URL, postgresOptions(db))
		if err != nil {
			return nil, err
		}
		return s, nil
	case db.UseMemory():
		a.log.Warn(ctx, "store.memory: data is lost on exit")
		return memory.New(), nil
	}

	if dir := filepath.Dir(db.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	a.log.Info(a.log.WithField(ctx, "path", db.Path), "store.sqlite")
	s, err := sqlite.New(ctx, db.Path)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func postgresOptions(db config.DBConfig) postgres.Options {
	return postgres.Options{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}
}

func (a *app) closeStore(ctx context.Context, s floor.Store) {
	if err := s.Close(); err != nil {
		a.log.Error(ctx, "error closing store", err)
	}
}
