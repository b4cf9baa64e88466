package core

import "testing"

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Lindenweg ", "Lindenweg"},
		{`="0815"`, "0815"},
		{"=4711", "4711"},
		{`=" 12 "`, "12"},
		{"", ""},
		{"a=b", "a=b"},
	}

	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseFlag Tests
// ----------------------------------------------------------------------------

func TestParseFlag(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"ja", true, false},
		{"JA", true, false},
		{"x", true, false},
		{"1", true, false},
		{"vorhanden", true, false},
		{" yes ", true, false},
		{"nein", false, false},
		{"", false, false},
		{"-", false, false},
		{"0", false, false},
		{"falsch", false, false},
		{"vielleicht", false, true},
		{"2", false, true},
	}

	for _, tt := range tests {
		got, err := ParseFlag(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFlag(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFlag(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseFlagErrorIsUserFacing(t *testing.T) {
	_, err := ParseFlag("maybe")
	if got := MapError(err).Code; got != "VAL003" {
		t.Errorf("MapError(ParseFlag error).Code = %q, want VAL003", got)
	}
}

// ----------------------------------------------------------------------------
// ParseCount Tests
// ----------------------------------------------------------------------------

func TestParseCount(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"12", 12, false},
		{"", 0, false},
		{"1.200", 1200, false},
		{"1,200", 1200, false},
		{`="8"`, 8, false},
		{"-3", 0, true},
		{"zwölf", 0, true},
		{"1.5e3", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseCount(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCount(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
