package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reconcile/internal/core"
)

type importOptions struct {
	kind    string
	file    string
	dryRun  bool
	jsonOut bool
}

func newImportCmd(app *App) *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a file headlessly in automatic mode",
		Long: `Runs the whole pipeline without an operator: decode, map with the
saved column mapping, classify and commit. Rows blocked by manual overrides
are skipped. A file whose columns cannot be mapped fails the run.`,
		Example: `  reconcile import --kind buildings --file gebaeude.csv
  reconcile import --kind k7 --file k7.csv --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), app, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.kind, "kind", "k", "", "import kind: buildings or k7")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "path to the delimited file")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "classify only, write nothing")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the summary as JSON")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(ctx context.Context, app *App, opts *importOptions) error {
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.file, err)
	}

	cfg, store, closeStore, err := app.setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx = core.ContextWithRequestMeta(ctx, core.RequestMeta{Actor: "cli", UserAgent: "reconcile-cli"})
	sum, err := core.NewService(store, cfg).RunImport(ctx, core.ImportRequest{
		Kind:     core.Kind(opts.kind),
		FileName: filepath.Base(opts.file),
		Data:     data,
		DryRun:   opts.dryRun,
		Headless: true,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
	}

	if opts.jsonOut {
		enc := json.NewEncoder(app.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return err
		}
	} else {
		printSummary(app.Out, sum, opts.dryRun)
	}

	switch sum.Phase {
	case core.PhaseFailed:
		return fmt.Errorf("import failed")
	case core.PhaseCancelled:
		return fmt.Errorf("import cancelled")
	}
	return nil
}

// printSummary writes a human-readable run summary.
func printSummary(w io.Writer, sum *core.ImportSummary, dryRun bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Import\t%s (%s)\n", sum.FileName, sum.Kind)
	fmt.Fprintf(tw, "Result\t%s\n", sum.Phase)
	if sum.BatchID != "" {
		fmt.Fprintf(tw, "Batch\t%s\n", sum.BatchID)
	}
	fmt.Fprintf(tw, "Duration\t%s\n", sum.Duration.Round(time.Millisecond))
	fmt.Fprintln(tw)

	c := sum.Counts
	fmt.Fprintf(tw, "new\t%d\n", c.New)
	fmt.Fprintf(tw, "update\t%d\n", c.Update)
	fmt.Fprintf(tw, "unchanged\t%d\n", c.Unchanged)
	fmt.Fprintf(tw, "blocked\t%d\n", c.Blocked)
	fmt.Fprintf(tw, "duplicate\t%d\n", c.Duplicate)
	fmt.Fprintf(tw, "unresolved\t%d\n", c.Unresolved)
	fmt.Fprintf(tw, "ignored\t%d\n", c.Ignored)
	fmt.Fprintf(tw, "invalid\t%d\n", c.Invalid)

	if !dryRun {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "created\t%d\n", sum.Created)
		fmt.Fprintf(tw, "updated\t%d\n", sum.Updated)
		fmt.Fprintf(tw, "skipped\t%d\n", sum.Skipped)
	}
	tw.Flush()

	for _, e := range sum.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
}
