package core

// convert.go turns raw cell text into typed field values.
//
// Registry extracts come out of spreadsheets maintained by hand, so the
// converters accept the usual variants: German and English yes/no words,
// "x" check marks, Excel formula prefixes (="0815") and thousand separators.

import (
	"fmt"
	"strconv"
	"strings"
)

var (
	trueWords  = map[string]bool{"ja": true, "j": true, "yes": true, "y": true, "true": true, "t": true, "1": true, "x": true, "wahr": true, "vorhanden": true}
	falseWords = map[string]bool{"": true, "nein": true, "n": true, "no": true, "false": true, "f": true, "0": true, "-": true, "falsch": true}
)

// CleanCell removes spreadsheet artifacts from a cell value:
// surrounding whitespace and an Excel formula prefix (="..." or =...).
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		return strings.TrimSpace(s[2 : len(s)-1])
	}
	return strings.TrimSpace(strings.TrimPrefix(s, "="))
}

// ParseFlag converts a yes/no cell. An empty cell is false.
func ParseFlag(s string) (bool, error) {
	v := strings.ToLower(CleanCell(s))
	switch {
	case trueWords[v]:
		return true, nil
	case falseWords[v]:
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// ParseCount converts a non-negative whole number cell. An empty cell is 0.
// Thousand separators ("1.200", "1,200") are accepted.
func ParseCount(s string) (int, error) {
	v := CleanCell(s)
	if v == "" {
		return 0, nil
	}
	v = strings.NewReplacer(".", "", ",", "", " ", "").Replace(v)
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}

// normalizeCode lower-cases enumerated values such as rollout type so that
// "FTTH" and "ftth" compare equal.
func normalizeCode(s string) string {
	return strings.ToLower(CleanCell(s))
}
