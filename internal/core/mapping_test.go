package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestAutoMap(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		kind   Kind
		want   map[string]Field
	}{
		{
			name:   "german building export",
			header: []string{"Strasse", "Hausnummer", "PLZ", "Ausbauart"},
			kind:   KindBuildings,
			want: map[string]Field{
				"Strasse":    FieldStreet,
				"Hausnummer": FieldHouseNumber,
				"PLZ":        FieldPostalCode,
				"Ausbauart":  FieldRolloutType,
			},
		},
		{
			name:   "punctuation and case are ignored",
			header: []string{"Straße", "Haus-Nr.", "Anzahl WE", "Glasfaser?"},
			kind:   KindBuildings,
			want: map[string]Field{
				"Straße":     FieldStreet,
				"Haus-Nr.":   FieldHouseNumber,
				"Anzahl WE":  FieldUnitCount,
				"Glasfaser?": FieldFiberReady,
			},
		},
		{
			name:   "leftmost alias wins",
			header: []string{"Str", "Strasse", "Nr"},
			kind:   KindBuildings,
			want: map[string]Field{
				"Str": FieldStreet,
				"Nr":  FieldHouseNumber,
			},
		},
		{
			name:   "aliases outside the kind are skipped",
			header: []string{"Strasse", "Nr", "Ausbauart", "K7", "Dienstcode"},
			kind:   KindK7,
			want: map[string]Field{
				"Strasse":    FieldStreet,
				"Nr":         FieldHouseNumber,
				"K7":         FieldK7ID,
				"Dienstcode": FieldServiceCode,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AutoMap(tt.header, tt.kind).Entries()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AutoMap() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestColumnMappingAssign(t *testing.T) {
	m := AutoMap([]string{"Strasse", "Adresse", "Nr"}, KindBuildings)

	if err := m.Assign("Adresse", FieldStreet); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if got := m.FieldFor("Strasse"); got != FieldSkip {
		t.Errorf("FieldFor(Strasse) = %q, want skip after reassignment", got)
	}
	if got := m.FieldFor("Adresse"); got != FieldStreet {
		t.Errorf("FieldFor(Adresse) = %q, want street", got)
	}

	if err := m.Assign("Nr", FieldSkip); err != nil {
		t.Fatalf("Assign(skip) error = %v", err)
	}
	if m.Has(FieldHouseNumber) {
		t.Error("Has(house_number) = true after skip")
	}

	err := m.Assign("Nr", FieldK7ID)
	if err == nil || !strings.Contains(err.Error(), "invalid enum") {
		t.Errorf("Assign(k7_id) on building mapping error = %v, want invalid enum", err)
	}

	wantOverrides := map[string]Field{"Adresse": FieldStreet, "Nr": FieldSkip}
	if got := m.Overrides(); !reflect.DeepEqual(got, wantOverrides) {
		t.Errorf("Overrides() = %v, want %v", got, wantOverrides)
	}
}

func TestColumnMappingClone(t *testing.T) {
	m := AutoMap([]string{"Strasse", "Nr"}, KindBuildings)
	c := m.Clone()
	if err := c.Assign("Nr", FieldSkip); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if !m.Has(FieldHouseNumber) {
		t.Error("Assign on clone changed the original")
	}
}

func TestColumnMappingValidate(t *testing.T) {
	m := AutoMap([]string{"Strasse", "PLZ"}, KindBuildings)

	err := m.Validate()
	var me *MappingError
	if !errors.As(err, &me) {
		t.Fatalf("Validate() error = %v, want *MappingError", err)
	}
	if !reflect.DeepEqual(me.Missing, []Field{FieldHouseNumber}) {
		t.Errorf("Missing = %v, want [house_number]", me.Missing)
	}
	if code := MapError(err).Code; code != "VAL001" {
		t.Errorf("MapError(Validate()).Code = %q, want VAL001", code)
	}

	if err := m.Assign("PLZ", FieldHouseNumber); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate() after fix error = %v", err)
	}
}

func TestColumnMappingMergeSaved(t *testing.T) {
	header := []string{"Adresse", "Hnr", "Notiz"}
	m := AutoMap(header, KindBuildings)

	m.MergeSaved(map[string]Field{
		"Adresse":   FieldStreet,
		"Notiz":     FieldSkip,
		"Vorwahl":   FieldCity,
		"Bemerkung": FieldK7ID,
	}, header)

	want := map[string]Field{"Adresse": FieldStreet, "Hnr": FieldHouseNumber}
	if got := m.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %v, want %v", got, want)
	}
}
