package core

// ConflictItem is a blocked row awaiting an operator decision.
type ConflictItem struct {
	Line     int           `json:"line"`
	EntityID string        `json:"entityId"`
	Address  string        `json:"address"`
	Changes  []FieldChange `json:"changes"`
}

// ReviewSet returns the blocked rows in file order. Rows stay blocked
// until the operator clears the entity's override; committing with rows
// still blocked skips them.
func (a *Analysis) ReviewSet() []ConflictItem {
	var items []ConflictItem
	for _, r := range a.Rows {
		if r.Class != ClassBlocked {
			continue
		}
		items = append(items, ConflictItem{
			Line:     r.Line,
			EntityID: r.Match.ID,
			Address:  r.Match.Address(),
			Changes:  r.Changes,
		})
	}
	return items
}

// IsBlocked reports whether any row of the analysis is blocked on entityID.
func (a *Analysis) IsBlocked(entityID string) bool {
	for _, r := range a.Rows {
		if r.Class == ClassBlocked && r.Match.ID == entityID {
			return true
		}
	}
	return false
}

// ReleaseEntity records that the override on entityID was cleared: the
// indexed entity loses both flags and its blocked rows become updates. It
// returns the number of reclassified rows.
func (a *Analysis) ReleaseEntity(entityID string) int {
	n := 0
	for i := range a.Rows {
		r := &a.Rows[i]
		if r.Match == nil || r.Match.ID != entityID {
			continue
		}
		r.Match.HasManualOverride = false
		r.Match.ManualOverrideActive = false
		if r.Class == ClassBlocked {
			r.Class = ClassUpdate
			n++
		}
	}
	return n
}
