// Package cli wires the reconcile commands with cobra.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/JonMunkholm/reconcile/internal/store/postgres"
)

// App carries what the commands share. Tests replace LoadConfig and
// OpenStore to run commands against an in-memory store.
type App struct {
	Out io.Writer
	Err io.Writer

	LoadConfig func() (*config.Config, error)
	// OpenStore returns a store and a function releasing it.
	OpenStore func(ctx context.Context, cfg *config.Config) (core.Store, func(), error)

	envFiles []string
}

// NewApp returns an App that reads the environment and uses PostgreSQL.
func NewApp() *App {
	return &App{
		Out:        os.Stdout,
		Err:        os.Stderr,
		LoadConfig: config.Load,
		OpenStore:  openPostgres,
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return postgres.New(pool), pool.Close, nil
}

// NewRootCmd creates the root command with every sub-command attached.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Bulk import and reconciliation for the building registry",
		Long: `reconcile imports delimited building and K7 service files into the
registry, classifies every row against existing entities, commits the
accepted rows as a revertible batch and serves the same workflow over HTTP.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.loadEnv()
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	rootCmd.SetOut(app.Out)
	rootCmd.SetErr(app.Err)

	rootCmd.PersistentFlags().StringSliceVar(&app.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	rootCmd.AddCommand(
		newServeCmd(app),
		newImportCmd(app),
		newBatchesCmd(app),
		newRevertCmd(app),
		newMigrateCmd(app),
	)
	return rootCmd
}

// loadEnv applies dotenv files over the process environment.
func (a *App) loadEnv() {
	if err := godotenv.Overload(a.envFiles...); err != nil {
		slog.Debug("no .env file loaded, using environment variables", "error", err)
	} else {
		slog.Debug("loaded .env file (overwriting existing env vars)")
	}
}

// setup loads config, configures logging on stderr and opens the store.
// Commands other than serve keep stdout for their own output.
func (a *App) setup(ctx context.Context) (*config.Config, core.Store, func(), error) {
	cfg, err := a.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logging.SetupWriter(a.Err, cfg.Logging.Level, cfg.Logging.Format)

	store, closeFn, err := a.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, store, closeFn, nil
}
