package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/JonMunkholm/reconcile/internal/store/memory"
)

func TestRevertRestoresPreImage(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	original := core.Building{
		ID:                "b1",
		Street:            "Lindenweg",
		HouseNumber:       "5",
		PostalCode:        "85053",
		UnitCount:         3,
		RolloutType:       "geplant",
		CableTV:           true,
		HasManualOverride: true,
		ExternalObjectID:  "OBJ-1",
	}
	untouched := core.Building{
		ID:          "b2",
		Street:      "Birkenweg",
		HouseNumber: "9",
		PostalCode:  "85055",
		UnitCount:   12,
		RolloutType: "fttb",
		Telephony:   true,
	}
	store.Seed(original, untouched)
	before, _ := store.GetBuilding(ctx, "b1")
	untouchedBefore, _ := store.GetBuilding(ctx, "b2")

	file := "Strasse;Hausnummer;PLZ;Ausbauart;WE;Kabel TV;Objekt-ID\n" +
		"Lindenweg;5;85053;ftth;8;nein;OBJ-2\n" +
		"Neuweg;1;85053;ftth;2;ja;OBJ-3\n"
	batch, out := commit(t, store, analyze(t, store, core.KindBuildings, file))
	if out.Created != 1 || out.Updated != 1 {
		t.Fatalf("Created, Updated = %d, %d, want 1, 1", out.Created, out.Updated)
	}

	res, err := core.RevertBatch(ctx, store, batch.ID, time.Now())
	if err != nil {
		t.Fatalf("RevertBatch() error = %v", err)
	}
	if res.Deleted != 1 || res.Restored != 1 {
		t.Errorf("Deleted, Restored = %d, %d, want 1, 1", res.Deleted, res.Restored)
	}

	after, err := store.GetBuilding(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBuilding() error = %v", err)
	}
	after.UpdatedAt = before.UpdatedAt
	if after != before {
		t.Errorf("after revert = %+v, want %+v", after, before)
	}
	untouchedAfter, err := store.GetBuilding(ctx, "b2")
	if err != nil {
		t.Fatalf("GetBuilding(b2) error = %v", err)
	}
	if untouchedAfter != untouchedBefore {
		t.Errorf("untouched building after revert = %+v, want %+v", untouchedAfter, untouchedBefore)
	}
	if n := len(store.Buildings()); n != 2 {
		t.Errorf("buildings after revert = %d, want 2", n)
	}

	stored, _ := store.GetBatch(ctx, batch.ID)
	if !stored.IsReverted || stored.RevertedAt == nil {
		t.Errorf("batch IsReverted, RevertedAt = %v, %v, want true, set", stored.IsReverted, stored.RevertedAt)
	}
}

func TestRevertTwiceIsRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	batch, _ := commit(t, store, analyze(t, store, core.KindBuildings, scenarioFile))

	if _, err := core.RevertBatch(ctx, store, batch.ID, time.Now()); err != nil {
		t.Fatalf("first RevertBatch() error = %v", err)
	}
	_, err := core.RevertBatch(ctx, store, batch.ID, time.Now())
	if !errors.Is(err, core.ErrAlreadyReverted) {
		t.Errorf("second RevertBatch() error = %v, want ErrAlreadyReverted", err)
	}
}

func TestRevertUnknownBatch(t *testing.T) {
	_, err := core.RevertBatch(context.Background(), memory.New(), "missing", time.Now())
	if !errors.Is(err, core.ErrBatchNotFound) {
		t.Errorf("RevertBatch() error = %v, want ErrBatchNotFound", err)
	}
}

func TestRevertEmptyBatchStillMarks(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	batch, err := core.CreateBatch(ctx, store, core.KindBuildings, "empty.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := core.FinalizeBatch(ctx, store, batch, core.CommitOutcome{}); err != nil {
		t.Fatal(err)
	}

	res, err := core.RevertBatch(ctx, store, batch.ID, time.Now())
	if err != nil {
		t.Fatalf("RevertBatch() error = %v", err)
	}
	if res.Deleted != 0 || res.Restored != 0 {
		t.Errorf("result = %+v, want no changes", res)
	}
	stored, _ := store.GetBatch(ctx, batch.ID)
	if !stored.IsReverted {
		t.Error("IsReverted = false, want true")
	}
}

func TestRevertSkipsMissingAndUnbacked(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	batch, out := commit(t, store, analyze(t, store, core.KindBuildings, scenarioFile))
	createdID := out.AffectedIDs[0]

	if err := store.DeleteBuilding(ctx, createdID); err != nil {
		t.Fatal(err)
	}
	batch.AffectedIDs = append(batch.AffectedIDs, "legacy-id")
	if err := store.FinalizeBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	res, err := core.RevertBatch(ctx, store, batch.ID, time.Now())
	if err != nil {
		t.Fatalf("RevertBatch() error = %v", err)
	}
	if len(res.Missing) != 1 || res.Missing[0] != createdID {
		t.Errorf("Missing = %v, want [%s]", res.Missing, createdID)
	}
	if len(res.Unbacked) != 1 || res.Unbacked[0] != "legacy-id" {
		t.Errorf("Unbacked = %v, want [legacy-id]", res.Unbacked)
	}
}
