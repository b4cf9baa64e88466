package core

import (
	"fmt"
)

// Prepared is a decoded, parsed and auto-mapped file awaiting analysis.
type Prepared struct {
	Kind     Kind
	FileName string
	Decoded  DecodedText
	File     *ParsedFile
	Mapping  *ColumnMapping
}

// Prepare runs the stages that need no registry access: decoding, parsing
// with the session's ignore patterns and column mapping seeded from the
// alias table and the operator's saved assignments.
func Prepare(data []byte, fileName string, kind Kind, settings Settings, saved map[string]Field) (*Prepared, error) {
	decoded := NormalizeEncoding(data)

	pf, err := ParseRows(decoded.Text, decoded.Delimiter, settings.IgnorePatterns)
	if err != nil {
		return nil, err
	}
	// The text is fully represented by pf from here on.
	decoded.Text = ""

	mapping := AutoMap(pf.Header, kind)
	mapping.MergeSaved(saved, pf.Header)

	return &Prepared{
		Kind:     kind,
		FileName: fileName,
		Decoded:  decoded,
		File:     pf,
		Mapping:  mapping,
	}, nil
}

// Analysis is the classified plan of one import.
type Analysis struct {
	Kind      Kind
	FileName  string
	Header    []string
	Mapped    FieldSet
	Rows      []RowPlan
	Invalid   []InvalidRow
	Ignored   int
	Unmatched *UnmatchedCollector
}

// Analyze validates the mapping, transforms rows and classifies every
// record against the registry. A *MappingError is returned when required
// fields are unmapped.
func Analyze(p *Prepared, reg *Registry, maxUnmatched int) (*Analysis, error) {
	if err := p.Mapping.Validate(); err != nil {
		return nil, err
	}

	records, invalid := Transform(p.File, p.Mapping)
	a := &Analysis{
		Kind:      p.Kind,
		FileName:  p.FileName,
		Header:    p.File.Header,
		Mapped:    p.Mapping.Fields(),
		Rows:      make([]RowPlan, 0, len(records)),
		Invalid:   invalid,
		Ignored:   p.File.Ignored,
		Unmatched: NewUnmatchedCollector(maxUnmatched),
	}

	switch p.Kind {
	case KindBuildings:
		a.classifyBuildings(records, reg)
	case KindK7:
		a.classifyK7(records, reg)
	default:
		return nil, fmt.Errorf("unknown import kind: %q", p.Kind)
	}
	return a, nil
}

// classifyBuildings keeps the first row per building. Later rows resolving
// to the same existing entity, or repeating the address of an earlier new
// row, are duplicates.
func (a *Analysis) classifyBuildings(records []Record, reg *Registry) {
	claimed := make(map[string]bool)
	pending := make(map[MatchKey]bool)

	for _, rec := range records {
		match := reg.Resolve(rec.Building)
		if match == nil {
			a.Unmatched.Add(rec)
			byPostal, byCity := BuildingKeys(rec.Building)
			if pending[byPostal] || pending[byCity] {
				a.Rows = append(a.Rows, RowPlan{Record: rec, Class: ClassDuplicate})
				continue
			}
			for _, k := range []MatchKey{byPostal, byCity} {
				if k != "" {
					pending[k] = true
				}
			}
		} else if claimed[match.ID] {
			a.Rows = append(a.Rows, RowPlan{Record: rec, Class: ClassDuplicate, Match: match})
			continue
		} else {
			claimed[match.ID] = true
		}
		a.Rows = append(a.Rows, Classify(rec, match, a.Mapped))
	}
}

func (a *Analysis) classifyK7(records []Record, reg *Registry) {
	for _, rec := range records {
		match := reg.Resolve(rec.Building)
		if match == nil {
			a.Unmatched.Add(rec)
		}
		a.Rows = append(a.Rows, classifyK7(rec, match))
	}
}

// Counts tallies the classification.
func (a *Analysis) Counts() ClassCounts {
	c := ClassCounts{Ignored: a.Ignored, Invalid: len(a.Invalid)}
	for _, r := range a.Rows {
		switch r.Class {
		case ClassNew:
			c.New++
		case ClassUnchanged:
			c.Unchanged++
		case ClassUpdate:
			c.Update++
		case ClassBlocked:
			c.Blocked++
		case ClassDuplicate:
			c.Duplicate++
		case ClassUnresolved:
			c.Unresolved++
		}
	}
	return c
}

// Accepted returns the rows the committer writes, in file order.
func (a *Analysis) Accepted() []RowPlan {
	var out []RowPlan
	for _, r := range a.Rows {
		if r.Class == ClassNew || r.Class == ClassUpdate {
			out = append(out, r)
		}
	}
	return out
}

// Classes returns each row's class keyed by source line.
func (a *Analysis) Classes() map[int]RowClass {
	out := make(map[int]RowClass, len(a.Rows))
	for _, r := range a.Rows {
		out[r.Line] = r.Class
	}
	return out
}
