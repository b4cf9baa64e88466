package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reconcile/internal/core"
)

func newBatchesCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List recent import batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatches(cmd.Context(), app, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", core.DefaultBatchListLimit, "number of batches to show")
	return cmd
}

func runBatches(ctx context.Context, app *App, limit int) error {
	cfg, store, closeStore, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	batches, err := core.NewService(store, cfg).ListBatches(ctx, limit)
	if err != nil {
		return err
	}
	printBatches(app.Out, batches)
	return nil
}

func printBatches(w io.Writer, batches []core.ImportBatch) {
	if len(batches) == 0 {
		fmt.Fprintln(w, "no batches")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tFILE\tCREATED\tUPDATED\tSKIPPED\tREVERTED\tAT")
	for _, b := range batches {
		reverted := "no"
		if b.IsReverted {
			reverted = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			b.ID, b.Kind, b.FileName, b.RowsCreated, b.RowsUpdated, b.RowsSkipped,
			reverted, b.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func newRevertCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "revert <batch-id>",
		Short: "Revert an import batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRevert(cmd.Context(), app, args[0])
		},
	}
}

func runRevert(ctx context.Context, app *App, batchID string) error {
	cfg, store, closeStore, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx = core.ContextWithRequestMeta(ctx, core.RequestMeta{Actor: "cli", UserAgent: "reconcile-cli"})
	res, err := core.NewService(store, cfg).RevertBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
	}

	fmt.Fprintf(app.Out, "reverted batch %s: %d deleted, %d restored\n", res.BatchID, res.Deleted, res.Restored)
	for _, id := range res.Missing {
		fmt.Fprintf(app.Out, "missing: %s\n", id)
	}
	for _, id := range res.Unbacked {
		fmt.Fprintf(app.Out, "no undo record: %s\n", id)
	}
	return nil
}
