package core_test

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/store/memory"
)

// analyze runs decoding, parsing, mapping and classification against store.
func analyze(t *testing.T, store *memory.Store, kind core.Kind, text string) *core.Analysis {
	t.Helper()
	ctx := context.Background()

	settings, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	p, err := core.Prepare([]byte(text), "test.csv", kind, settings, nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	reg, err := core.LoadRegistry(ctx, store, 100, nil, nil)
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	a, err := core.Analyze(p, reg, 100)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	return a
}

// commit writes a under a new batch and finalizes it.
func commit(t *testing.T, store *memory.Store, a *core.Analysis) (core.ImportBatch, core.CommitOutcome) {
	t.Helper()
	ctx := context.Background()

	b, err := core.CreateBatch(ctx, store, a.Kind, a.FileName)
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	out := core.Commit(ctx, store, a, core.CommitOptions{BatchSize: 500}, nil, nil)
	b, err = core.FinalizeBatch(ctx, store, b, out)
	if err != nil {
		t.Fatalf("FinalizeBatch() error = %v", err)
	}
	return b, out
}

const scenarioFile = "Strasse;Hausnummer;PLZ;Ausbauart\nLindenweg;5;85053;FTTH\n"

func TestScenarioNewBuilding(t *testing.T) {
	store := memory.New()
	a := analyze(t, store, core.KindBuildings, scenarioFile)

	if len(a.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(a.Rows))
	}
	row := a.Rows[0]
	if row.Class != core.ClassNew {
		t.Errorf("Class = %q, want new", row.Class)
	}
	b := row.Building
	if b.Street != "Lindenweg" || b.HouseNumber != "5" || b.PostalCode != "85053" || b.RolloutType != "ftth" {
		t.Errorf("Building = %+v, want Lindenweg 5 85053 ftth", b)
	}

	_, out := commit(t, store, a)
	if out.Created != 1 || len(store.Buildings()) != 1 {
		t.Errorf("Created = %d, buildings = %d, want 1, 1", out.Created, len(store.Buildings()))
	}
}

func TestScenarioUpdate(t *testing.T) {
	store := memory.New()
	store.Seed(core.Building{ID: "b1", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053", RolloutType: "geplant"})

	a := analyze(t, store, core.KindBuildings, scenarioFile)
	row := a.Rows[0]
	if row.Class != core.ClassUpdate {
		t.Fatalf("Class = %q, want update", row.Class)
	}
	want := []core.FieldChange{{Field: core.FieldRolloutType, Old: "geplant", New: "ftth"}}
	if !reflect.DeepEqual(row.Changes, want) {
		t.Errorf("Changes = %+v, want %+v", row.Changes, want)
	}

	batch, out := commit(t, store, a)
	if out.Updated != 1 {
		t.Errorf("Updated = %d, want 1", out.Updated)
	}
	if len(batch.UndoRecords) != 1 || batch.UndoRecords[0].PreImage.RolloutType != "geplant" {
		t.Errorf("UndoRecords = %+v, want one pre-image with geplant", batch.UndoRecords)
	}
	got, _ := store.GetBuilding(context.Background(), "b1")
	if got.RolloutType != "ftth" {
		t.Errorf("stored RolloutType = %q, want ftth", got.RolloutType)
	}
}

func TestScenarioOverrideBlocks(t *testing.T) {
	store := memory.New()
	store.Seed(core.Building{ID: "b1", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053", RolloutType: "geplant"})
	if err := store.SetOverride("b1", true); err != nil {
		t.Fatal(err)
	}

	a := analyze(t, store, core.KindBuildings, scenarioFile)
	if a.Rows[0].Class != core.ClassBlocked {
		t.Fatalf("Class = %q, want blocked", a.Rows[0].Class)
	}
	if items := a.ReviewSet(); len(items) != 1 || items[0].EntityID != "b1" {
		t.Errorf("ReviewSet() = %+v, want one item for b1", items)
	}

	batch, out := commit(t, store, a)
	if len(batch.UndoRecords) != 0 || out.Updated != 0 {
		t.Errorf("UndoRecords = %d, Updated = %d, want 0, 0", len(batch.UndoRecords), out.Updated)
	}
	if out.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", out.Skipped)
	}
	got, _ := store.GetBuilding(context.Background(), "b1")
	if got.RolloutType != "geplant" {
		t.Errorf("stored RolloutType = %q, want geplant", got.RolloutType)
	}
}

func TestReleaseEntityAfterClear(t *testing.T) {
	store := memory.New()
	store.Seed(core.Building{ID: "b1", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053", RolloutType: "geplant"})
	_ = store.SetOverride("b1", true)

	a := analyze(t, store, core.KindBuildings, scenarioFile)
	if err := store.ClearOverride(context.Background(), "b1"); err != nil {
		t.Fatal(err)
	}
	if n := a.ReleaseEntity("b1"); n != 1 {
		t.Errorf("ReleaseEntity() = %d, want 1", n)
	}
	if a.IsBlocked("b1") {
		t.Error("IsBlocked(b1) = true after release")
	}

	_, out := commit(t, store, a)
	if out.Updated != 1 {
		t.Errorf("Updated = %d, want 1", out.Updated)
	}
}

func TestOverrideSetAfterAnalysisIsHonored(t *testing.T) {
	store := memory.New()
	store.Seed(core.Building{ID: "b1", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053", RolloutType: "geplant"})

	a := analyze(t, store, core.KindBuildings, scenarioFile)
	_ = store.SetOverride("b1", true)

	_, out := commit(t, store, a)
	if out.Updated != 0 || out.Skipped != 1 {
		t.Errorf("Updated, Skipped = %d, %d, want 0, 1", out.Updated, out.Skipped)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	file := "Strasse;Hausnummer;PLZ;Ausbauart;WE\n" +
		"Lindenweg;5;85053;FTTH;4\n" +
		"Am Markt;1;85049;FTTB;12\n" +
		"Hauptstraße;7;85051;geplant;1\n"

	store := memory.New()
	store.Seed(core.Building{ID: "b1", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053", RolloutType: "geplant"})

	_, first := commit(t, store, analyze(t, store, core.KindBuildings, file))
	if first.Created != 2 || first.Updated != 1 {
		t.Fatalf("first run created, updated = %d, %d, want 2, 1", first.Created, first.Updated)
	}

	a := analyze(t, store, core.KindBuildings, file)
	if c := a.Counts(); c.Unchanged != 3 {
		t.Errorf("second run counts = %+v, want 3 unchanged", c)
	}
	_, second := commit(t, store, a)
	if second.Processed != 0 || len(second.UndoRecords) != 0 {
		t.Errorf("second run processed = %d, undo = %d, want 0, 0", second.Processed, len(second.UndoRecords))
	}
}

func TestAnalysisIsDeterministic(t *testing.T) {
	var b strings.Builder
	b.WriteString("Strasse;Hausnummer;PLZ;Ausbauart\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "Weg %d;%d;85053;ftth\n", i%7, i)
	}
	b.WriteString("Weg 1;1;85053;fttb\n")

	store := memory.New()
	for i := 0; i < 20; i += 2 {
		store.Seed(core.Building{Street: fmt.Sprintf("Weg %d", i%7), HouseNumber: fmt.Sprint(i), PostalCode: "85053", RolloutType: "geplant"})
	}

	first := analyze(t, store, core.KindBuildings, b.String())
	for i := 0; i < 5; i++ {
		again := analyze(t, store, core.KindBuildings, b.String())
		if !reflect.DeepEqual(first.Classes(), again.Classes()) {
			t.Fatalf("run %d classified differently", i)
		}
	}
}

func TestDuplicateRowsInFile(t *testing.T) {
	file := "Strasse;Hausnummer;PLZ;Ausbauart\n" +
		"Lindenweg;5;85053;ftth\n" +
		"Lindenweg;5;85053;fttb\n" +
		"Neuweg;1;85053;ftth\n" +
		"Neuweg;1;85053;ftth\n"

	store := memory.New()
	store.Seed(core.Building{ID: "b1", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053"})

	a := analyze(t, store, core.KindBuildings, file)
	want := map[int]core.RowClass{2: core.ClassUpdate, 3: core.ClassDuplicate, 4: core.ClassNew, 5: core.ClassDuplicate}
	if got := a.Classes(); !reflect.DeepEqual(got, want) {
		t.Errorf("Classes() = %v, want %v", got, want)
	}
}

func TestInvalidAndIgnoredRowsAreCounted(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.SaveSettings(ctx, core.Settings{IgnorePatterns: []string{"testobjekt"}, DefaultMode: core.ModeManual})

	file := "Strasse;Hausnummer;PLZ;WE\n" +
		"Lindenweg;5;85053;4\n" +
		"Lindenweg;;85053;4\n" +
		"Am Markt;1;85053;viele\n" +
		"Testobjekt;1;85053;1\n"

	a := analyze(t, store, core.KindBuildings, file)
	c := a.Counts()
	if c.New != 1 || c.Invalid != 2 || c.Ignored != 1 {
		t.Errorf("Counts() = %+v, want 1 new, 2 invalid, 1 ignored", c)
	}
	if !strings.Contains(a.Invalid[0].Reason, "house_number") {
		t.Errorf("Invalid[0].Reason = %q, want house_number", a.Invalid[0].Reason)
	}
}

func TestK7Import(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.Seed(core.Building{ID: "b1", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053"})
	if _, err := store.InsertK7Entries(ctx, []core.K7ServiceEntry{{BuildingID: "b1", K7ID: "K-1", ServiceCode: "tv"}}); err != nil {
		t.Fatal(err)
	}

	file := "Strasse;Hausnummer;PLZ;K7;Dienstcode;Dienstbeschreibung\n" +
		"Lindenweg;5;85053;K-1;tv;Kabelfernsehen\n" +
		"Lindenweg;5;85053;K-1;inet;Internet\n" +
		"Lindenweg;5;85053;K-1;inet;Internet 1000\n" +
		"Unbekannt;9;85053;K-2;inet;Internet\n"

	a := analyze(t, store, core.KindK7, file)
	if c := a.Counts(); c.New != 3 || c.Unresolved != 1 {
		t.Errorf("Counts() = %+v, want 3 new, 1 unresolved", c)
	}

	_, out := commit(t, store, a)
	if out.Created != 1 || out.Duplicates != 2 {
		t.Errorf("Created, Duplicates = %d, %d, want 1, 2", out.Created, out.Duplicates)
	}
	if n := len(store.K7Entries()); n != 2 {
		t.Errorf("K7Entries() = %d, want 2", n)
	}
}
