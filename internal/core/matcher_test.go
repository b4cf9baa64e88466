package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// pagedStore serves ListBuildings from a slice and counts calls.
type pagedStore struct {
	RegistryStore
	buildings []Building
	calls     int
}

func (p *pagedStore) ListBuildings(_ context.Context, offset, limit int) ([]Building, error) {
	p.calls++
	if offset >= len(p.buildings) {
		return nil, nil
	}
	return p.buildings[offset:min(offset+limit, len(p.buildings))], nil
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry([]Building{
		{ID: "b1", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053", City: "Ingolstadt"},
		{ID: "b2", Street: "Hauptstraße", HouseNumber: "1", City: "München"},
	})

	tests := []struct {
		name string
		rec  Building
		want string
	}{
		{"postal key", Building{Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053"}, "b1"},
		{"city key", Building{Street: "Hauptstr.", HouseNumber: "1", City: "Muenchen"}, "b2"},
		{"postal miss falls back to city", Building{Street: "Lindenweg", HouseNumber: "5", PostalCode: "99999", City: "Ingolstadt"}, "b1"},
		{"spelling variants", Building{Street: "LINDENWEG", HouseNumber: " 5 ", PostalCode: "85053"}, "b1"},
		{"other house number", Building{Street: "Lindenweg", HouseNumber: "7", PostalCode: "85053"}, ""},
		{"no address", Building{PostalCode: "85053"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reg.Resolve(tt.rec)
			gotID := ""
			if got != nil {
				gotID = got.ID
			}
			if gotID != tt.want {
				t.Errorf("Resolve() = %q, want %q", gotID, tt.want)
			}
		})
	}
}

func TestRegistryCollisions(t *testing.T) {
	reg := NewRegistry([]Building{
		{ID: "first", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053"},
		{ID: "second", Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053"},
	})
	if reg.Collisions != 1 {
		t.Errorf("Collisions = %d, want 1", reg.Collisions)
	}
	if got := reg.Resolve(Building{Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053"}); got == nil || got.ID != "first" {
		t.Errorf("Resolve() = %v, want first", got)
	}
}

func TestLoadRegistry(t *testing.T) {
	store := &pagedStore{}
	for i := 0; i < 5; i++ {
		store.buildings = append(store.buildings, Building{
			ID:          fmt.Sprintf("b%d", i),
			Street:      "Lindenweg",
			HouseNumber: fmt.Sprint(i + 1),
			PostalCode:  "85053",
		})
	}

	var last ImportProgress
	reg, err := LoadRegistry(context.Background(), store, 2, nil, func(p ImportProgress) { last = p })
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	if reg.Size() != 5 {
		t.Errorf("Size() = %d, want 5", reg.Size())
	}
	if store.calls != 3 {
		t.Errorf("ListBuildings calls = %d, want 3", store.calls)
	}
	if last.Phase != PhaseLoading || last.Current != 5 {
		t.Errorf("last progress = %+v, want loading_registry at 5", last)
	}
	if reg.Get("b3") == nil {
		t.Error("Get(b3) = nil")
	}
}

func TestLoadRegistryCancelled(t *testing.T) {
	token := NewCancelToken()
	token.Cancel()

	_, err := LoadRegistry(context.Background(), &pagedStore{}, 10, token, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("LoadRegistry() error = %v, want ErrCancelled", err)
	}
}

func TestUnmatchedCollector(t *testing.T) {
	c := NewUnmatchedCollector(2)
	recs := []Record{
		{Line: 2, Building: Building{Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053"}},
		{Line: 3, Building: Building{Street: "Lindenweg", HouseNumber: "5", PostalCode: "85053"}},
		{Line: 4, Building: Building{Street: "Am Markt", HouseNumber: "1", PostalCode: "85053"}},
		{Line: 5, Building: Building{Street: "Bahnhofstr.", HouseNumber: "9", PostalCode: "85053"}},
	}
	for _, r := range recs {
		c.Add(r)
	}

	rows := c.Rows()
	if len(rows) != 2 || rows[0].Line != 2 || rows[1].Line != 4 {
		t.Errorf("Rows() lines = %v, want [2 4]", rows)
	}
	if c.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", c.Dropped())
	}
}

func TestCancelToken(t *testing.T) {
	var nilToken *CancelToken
	if nilToken.Cancelled() {
		t.Error("nil token reports cancelled")
	}

	token := NewCancelToken()
	token.Cancel()
	token.Cancel()
	if !token.Cancelled() {
		t.Error("Cancelled() = false after Cancel")
	}
	select {
	case <-token.Done():
	default:
		t.Error("Done() not closed after Cancel")
	}
}
