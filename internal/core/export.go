package core

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteUnmatchedCSV writes unmatched rows as semicolon-delimited text with
// a UTF-8 byte order mark. Every source column is kept.
func WriteUnmatchedCSV(w io.Writer, header []string, rows []UnmatchedRow) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write byte order mark: %w", err)
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	cw.UseCRLF = true

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Cells); err != nil {
			return fmt.Errorf("write line %d: %w", r.Line, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
