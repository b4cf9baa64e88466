package core

import (
	"reflect"
	"testing"
)

func TestDiff(t *testing.T) {
	existing := &Building{ID: "b1", Street: "Lindenweg", HouseNumber: "5", RolloutType: "geplant", UnitCount: 4, FiberReady: false}

	tests := []struct {
		name   string
		rec    Building
		mapped FieldSet
		want   []FieldChange
	}{
		{
			name:   "rollout type changed",
			rec:    Building{RolloutType: "ftth", UnitCount: 4},
			mapped: FieldSet{FieldRolloutType: true, FieldUnitCount: true},
			want:   []FieldChange{{Field: FieldRolloutType, Old: "geplant", New: "ftth"}},
		},
		{
			name:   "unmapped fields are not compared",
			rec:    Building{RolloutType: "geplant"},
			mapped: FieldSet{FieldRolloutType: true},
			want:   nil,
		},
		{
			name:   "address fields are never compared",
			rec:    Building{Street: "Lindenweg ", HouseNumber: "5a", RolloutType: "geplant"},
			mapped: FieldSet{FieldStreet: true, FieldHouseNumber: true, FieldRolloutType: true},
			want:   nil,
		},
		{
			name:   "several fields in fixed order",
			rec:    Building{UnitCount: 6, RolloutType: "fttb", FiberReady: true},
			mapped: FieldSet{FieldFiberReady: true, FieldRolloutType: true, FieldUnitCount: true},
			want: []FieldChange{
				{Field: FieldUnitCount, Old: "4", New: "6"},
				{Field: FieldRolloutType, Old: "geplant", New: "fttb"},
				{Field: FieldFiberReady, Old: "false", New: "true"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(&tt.rec, existing, tt.mapped)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestApplyChanges(t *testing.T) {
	existing := &Building{
		ID:                   "b1",
		Street:               "Lindenweg",
		HouseNumber:          "5",
		RolloutType:          "geplant",
		CableTV:              true,
		HasManualOverride:    true,
		ManualOverrideActive: false,
	}
	rec := &Building{Street: "Other", RolloutType: "ftth", CableTV: false}

	got := ApplyChanges(existing, rec, FieldSet{FieldRolloutType: true, FieldStreet: true})

	if got.RolloutType != "ftth" {
		t.Errorf("RolloutType = %q, want ftth", got.RolloutType)
	}
	if got.Street != "Lindenweg" || got.ID != "b1" {
		t.Errorf("identity changed: %+v", got)
	}
	if !got.CableTV {
		t.Error("unmapped CableTV was overwritten")
	}
	if !got.HasManualOverride {
		t.Error("override flag was overwritten")
	}
}

func TestClassify(t *testing.T) {
	mapped := FieldSet{FieldRolloutType: true}
	rec := Record{Line: 2, Building: Building{Street: "Lindenweg", HouseNumber: "5", RolloutType: "ftth"}}

	tests := []struct {
		name  string
		match *Building
		want  RowClass
	}{
		{"no match", nil, ClassNew},
		{"same values", &Building{ID: "b1", RolloutType: "ftth"}, ClassUnchanged},
		{"changed", &Building{ID: "b1", RolloutType: "geplant"}, ClassUpdate},
		{"override active", &Building{ID: "b1", RolloutType: "geplant", HasManualOverride: true, ManualOverrideActive: true}, ClassBlocked},
		{"override inactive", &Building{ID: "b1", RolloutType: "geplant", HasManualOverride: true}, ClassUpdate},
		{"override active but unchanged", &Building{ID: "b1", RolloutType: "ftth", ManualOverrideActive: true}, ClassUnchanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(rec, tt.match, mapped).Class; got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
