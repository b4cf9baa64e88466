package core

import "testing"

func TestNormalizeTextEquivalence(t *testing.T) {
	groups := [][]string{
		{"Hauptstraße", "Hauptstrasse", "Hauptstr.", "HAUPTSTR", "Hauptstra?e", "hauptstra\uFFFDe", "  Haupt straße "},
		{"Berliner Straße", "Berliner Str.", "berliner strasse", "Berlinerstr."},
		{"Müllerweg", "Muellerweg", "MÃ¼llerweg", "MÜLLERWEG"},
		{"Am Markt-Platz", "Am Marktplatz", "am  marktplatz"},
	}

	for _, group := range groups {
		want := NormalizeText(group[0])
		for _, s := range group[1:] {
			if got := NormalizeText(s); got != want {
				t.Errorf("NormalizeText(%q) = %q, want %q (same as %q)", s, got, want, group[0])
			}
		}
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hauptstraße", "hauptstrasse"},
		{"Berliner Str.", "berlinerstrasse"},
		{"Königsallee", "koenigsallee"},
		{"Gießen", "giessen"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.input); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeHouseNumber(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"5", "5"},
		{"5 A", "5a"},
		{" 12b ", "12b"},
		{"3 - 5", "3-5"},
	}
	for _, tt := range tests {
		if got := NormalizeHouseNumber(tt.input); got != tt.want {
			t.Errorf("NormalizeHouseNumber(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestBuildMatchKeys(t *testing.T) {
	tests := []struct {
		name                      string
		street, house, post, city string
		wantPostal, wantCity      MatchKey
	}{
		{"postal only", "Lindenweg", "5", "85053", "", "lindenweg|5|85053", ""},
		{"both", "Lindenweg", "5 a", " 85053 ", "Ingolstadt", "lindenweg|5a|85053", "lindenweg|5a|ingolstadt"},
		{"city only", "Hauptstr.", "1", "", "München", "", "hauptstrasse|1|muenchen"},
		{"no street", "", "5", "85053", "Ingolstadt", "", ""},
		{"no house number", "Lindenweg", " ", "85053", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, c := BuildMatchKeys(tt.street, tt.house, tt.post, tt.city)
			if p != tt.wantPostal {
				t.Errorf("byPostal = %q, want %q", p, tt.wantPostal)
			}
			if c != tt.wantCity {
				t.Errorf("byCity = %q, want %q", c, tt.wantCity)
			}
		})
	}
}
