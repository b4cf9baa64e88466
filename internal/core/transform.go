package core

import (
	"fmt"
	"strings"
)

// Record is the typed form of one source row. For building imports
// Building carries every mapped field; for K7 imports Building carries the
// address used to find the owning building and K7 carries the entry.
type Record struct {
	Line     int
	Cells    []string
	Building Building
	K7       K7ServiceEntry
}

// InvalidRow is a row rejected before matching.
type InvalidRow struct {
	Line   int      `json:"line"`
	Reason string   `json:"reason"`
	Cells  []string `json:"cells"`
}

type fieldSetter func(r *Record, v string) error

func textSetter(set func(r *Record, v string)) fieldSetter {
	return func(r *Record, v string) error {
		set(r, CleanCell(v))
		return nil
	}
}

func flagSetter(set func(r *Record, v bool)) fieldSetter {
	return func(r *Record, v string) error {
		b, err := ParseFlag(v)
		if err != nil {
			return err
		}
		set(r, b)
		return nil
	}
}

var fieldSetters = map[Field]fieldSetter{
	FieldStreet:      textSetter(func(r *Record, v string) { r.Building.Street = v }),
	FieldHouseNumber: textSetter(func(r *Record, v string) { r.Building.HouseNumber = v }),
	FieldPostalCode:  textSetter(func(r *Record, v string) { r.Building.PostalCode = v }),
	FieldCity:        textSetter(func(r *Record, v string) { r.Building.City = v }),
	FieldUnitCount: func(r *Record, v string) error {
		n, err := ParseCount(v)
		if err != nil {
			return err
		}
		r.Building.UnitCount = n
		return nil
	},
	FieldRolloutType:       textSetter(func(r *Record, v string) { r.Building.RolloutType = normalizeCode(v) }),
	FieldRolloutStatus:     textSetter(func(r *Record, v string) { r.Building.RolloutStatus = normalizeCode(v) }),
	FieldFiberReady:        flagSetter(func(r *Record, v bool) { r.Building.FiberReady = v }),
	FieldCableTV:           flagSetter(func(r *Record, v bool) { r.Building.CableTV = v }),
	FieldTelephony:         flagSetter(func(r *Record, v bool) { r.Building.Telephony = v }),
	FieldBasementAccess:    flagSetter(func(r *Record, v bool) { r.Building.BasementAccess = v }),
	FieldExternalObjectID:  textSetter(func(r *Record, v string) { r.Building.ExternalObjectID = v }),
	FieldExternalNetworkID: textSetter(func(r *Record, v string) { r.Building.ExternalNetworkID = v }),

	FieldK7ID:               textSetter(func(r *Record, v string) { r.K7.K7ID = v }),
	FieldK7Description:      textSetter(func(r *Record, v string) { r.K7.K7Description = v }),
	FieldServiceCode:        textSetter(func(r *Record, v string) { r.K7.ServiceCode = v }),
	FieldServiceDescription: textSetter(func(r *Record, v string) { r.K7.ServiceDescription = v }),
}

// Transform converts parsed rows into typed records using the mapping.
// Raw headers are not consulted after this point. Rows without a street or
// house number, or with an unparsable value, are returned as invalid.
func Transform(pf *ParsedFile, m *ColumnMapping) ([]Record, []InvalidRow) {
	idx := m.resolve(pf.Header)
	fields := KindFields(m.Kind())

	records := make([]Record, 0, len(pf.Rows))
	var invalid []InvalidRow
	for _, row := range pf.Rows {
		rec := Record{Line: row.Line, Cells: row.Cells}

		var errs []string
		for _, f := range fields {
			col, ok := idx[f]
			if !ok {
				continue
			}
			if err := fieldSetters[f](&rec, row.Cell(col)); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", f, err))
			}
		}
		if rec.Building.Street == "" {
			errs = append(errs, "required field street is empty")
		}
		if rec.Building.HouseNumber == "" {
			errs = append(errs, "required field house_number is empty")
		}

		if len(errs) > 0 {
			invalid = append(invalid, InvalidRow{
				Line:   row.Line,
				Reason: strings.Join(errs, "; "),
				Cells:  row.Cells,
			})
			continue
		}
		records = append(records, rec)
	}
	return records, invalid
}
