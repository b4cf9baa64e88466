package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reconcile/internal/core"
)

// migrator is implemented by stores with a schema.
type migrator interface {
	Migrate(ctx context.Context) error
}

func newMigrateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, closeStore, err := app.setup(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := migrateStore(ctx, store); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "schema applied")
			return nil
		},
	}
}

func migrateStore(ctx context.Context, store core.Store) error {
	m, ok := store.(migrator)
	if !ok {
		slog.Info("store has no schema to migrate")
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("schema applied")
	return nil
}
