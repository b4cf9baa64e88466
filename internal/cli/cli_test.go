package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/store/memory"
)

// testApp runs commands against store with fixed config.
func testApp(store *memory.Store) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	app := &App{
		Out: &out,
		Err: &bytes.Buffer{},
		LoadConfig: func() (*config.Config, error) {
			return &config.Config{
				Import: config.ImportConfig{
					BatchSize:        500,
					RegistryPageSize: 100,
					MaxUnmatched:     100,
					MaxFileSize:      1 << 20,
					MaxSummaryErrors: 10,
					SessionTTL:       time.Minute,
				},
				Logging: config.LoggingConfig{Level: "error", Format: "text"},
			}, nil
		},
		OpenStore: func(context.Context, *config.Config) (core.Store, func(), error) {
			return store, func() {}, nil
		},
		// Point at a file that does not exist so no real .env is applied.
		envFiles: []string{filepath.Join(os.TempDir(), "reconcile-test-missing.env")},
	}
	return app, &out
}

func execute(t *testing.T, app *App, args ...string) error {
	t.Helper()
	cmd := NewRootCmd(app)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gebaeude.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const cliFile = "Strasse;Hausnummer;PLZ;Ausbauart\nLindenweg;5;85053;FTTH\nAm Markt;1;85053;FTTB\n"

func TestImportCommand(t *testing.T) {
	store := memory.New()
	app, out := testApp(store)

	if err := execute(t, app, "import", "--kind", "buildings", "--file", writeFile(t, cliFile)); err != nil {
		t.Fatalf("import error = %v", err)
	}

	if n := len(store.Buildings()); n != 2 {
		t.Errorf("buildings = %d, want 2", n)
	}
	for _, want := range []string{"Result", "complete", "created"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestImportCommandDryRun(t *testing.T) {
	store := memory.New()
	app, out := testApp(store)

	if err := execute(t, app, "import", "-k", "buildings", "-f", writeFile(t, cliFile), "--dry-run"); err != nil {
		t.Fatalf("import --dry-run error = %v", err)
	}
	if n := len(store.Buildings()); n != 0 {
		t.Errorf("buildings = %d, want 0 after a dry run", n)
	}
	if strings.Contains(out.String(), "created") {
		t.Errorf("dry run output reports commit counts:\n%s", out.String())
	}
}

func TestImportCommandUnmappableFileFails(t *testing.T) {
	app, _ := testApp(memory.New())

	err := execute(t, app, "import", "--kind", "buildings", "--file", writeFile(t, "A;B\n1;2\n"))
	if err == nil {
		t.Fatal("import of an unmappable file succeeded")
	}
}

func TestImportCommandRequiresFlags(t *testing.T) {
	app, _ := testApp(memory.New())

	if err := execute(t, app, "import", "--kind", "buildings"); err == nil {
		t.Error("import without --file succeeded")
	}
}

func TestBatchesAndRevertCommands(t *testing.T) {
	store := memory.New()
	app, out := testApp(store)

	if err := execute(t, app, "import", "--kind", "buildings", "--file", writeFile(t, cliFile)); err != nil {
		t.Fatalf("import error = %v", err)
	}
	batches, _ := store.ListBatches(context.Background(), 10)
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	id := batches[0].ID

	out.Reset()
	if err := execute(t, app, "batches"); err != nil {
		t.Fatalf("batches error = %v", err)
	}
	if !strings.Contains(out.String(), id) {
		t.Errorf("batches output missing %s:\n%s", id, out.String())
	}

	out.Reset()
	if err := execute(t, app, "revert", id); err != nil {
		t.Fatalf("revert error = %v", err)
	}
	if !strings.Contains(out.String(), "2 deleted") {
		t.Errorf("revert output = %q, want 2 deleted", out.String())
	}
	if n := len(store.Buildings()); n != 0 {
		t.Errorf("buildings after revert = %d, want 0", n)
	}

	if err := execute(t, app, "revert", id); err == nil {
		t.Error("second revert succeeded")
	}
}

func TestMigrateWithoutSchema(t *testing.T) {
	app, out := testApp(memory.New())

	if err := execute(t, app, "migrate"); err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out.String(), "schema applied") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrintBatchesEmpty(t *testing.T) {
	var buf bytes.Buffer
	printBatches(&buf, nil)
	if got := buf.String(); got != "no batches\n" {
		t.Errorf("printBatches(nil) = %q, want %q", got, "no batches\n")
	}
}
