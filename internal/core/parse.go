package core

import (
	"errors"
	"strings"
)

// ErrNoDataRows is returned when a file has no line after the header.
var ErrNoDataRows = errors.New("empty file: a header and at least one data row are required")

// SourceRow is one data line of a parsed file.
type SourceRow struct {
	// Line is the 1-based line number in the source text.
	Line  int
	Cells []string
}

// Cell returns the cell at index i, or "" when the row is shorter.
func (r SourceRow) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// ParsedFile is a header plus the data rows that survived ignore filtering.
type ParsedFile struct {
	Header []string
	Rows   []SourceRow
	// Ignored counts rows dropped by an ignore pattern.
	Ignored int
}

// ParseRows splits text into a header and data rows. Blank lines are
// dropped. A row whose cells, joined by spaces, contain any ignore pattern
// (case-insensitive) is counted in Ignored and dropped. Rows are padded to
// the header width.
func ParseRows(text string, delim rune, ignore []string) (*ParsedFile, error) {
	patterns := make([]string, 0, len(ignore))
	for _, p := range ignore {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	pf := &ParsedFile{}
	headerSeen := false
	for i, line := range lines {
		if strings.TrimSpace(strings.TrimSuffix(line, "\r")) == "" {
			continue
		}
		cells := splitLine(strings.TrimSuffix(line, "\r"), delim)

		if !headerSeen {
			pf.Header = cells
			headerSeen = true
			continue
		}

		if matchesIgnore(cells, patterns) {
			pf.Ignored++
			continue
		}

		for len(cells) < len(pf.Header) {
			cells = append(cells, "")
		}
		pf.Rows = append(pf.Rows, SourceRow{Line: i + 1, Cells: cells})
	}

	if !headerSeen || len(pf.Rows)+pf.Ignored == 0 {
		return nil, ErrNoDataRows
	}
	return pf, nil
}

// splitLine parses one line into trimmed cells. A quote toggles quoted
// mode, the delimiter only splits outside quotes and a doubled quote inside
// quotes is a literal quote.
func splitLine(line string, delim rune) []string {
	var (
		cells    []string
		cur      strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			cur.WriteRune('"')
			i++
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

func matchesIgnore(cells []string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	joined := strings.ToLower(strings.Join(cells, " "))
	for _, p := range patterns {
		if strings.Contains(joined, p) {
			return true
		}
	}
	return false
}
