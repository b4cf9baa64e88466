package core

import "strconv"

// mutableFields are the fields an import may change on an existing
// building, in comparison order. Address fields identify the building and
// are never diffed.
var mutableFields = []Field{
	FieldUnitCount,
	FieldRolloutType,
	FieldRolloutStatus,
	FieldFiberReady,
	FieldCableTV,
	FieldTelephony,
	FieldBasementAccess,
	FieldExternalObjectID,
	FieldExternalNetworkID,
}

// MutableFields returns a copy of the diffable field list.
func MutableFields() []Field {
	return append([]Field(nil), mutableFields...)
}

// FieldSet is the set of fields present in a column mapping.
type FieldSet map[Field]bool

// Fields returns the set of mapped fields.
func (m *ColumnMapping) Fields() FieldSet {
	set := make(FieldSet, len(m.byHeader))
	for _, f := range m.byHeader {
		set[f] = true
	}
	return set
}

// FieldValue renders field f of b as a string.
func FieldValue(b *Building, f Field) string {
	switch f {
	case FieldStreet:
		return b.Street
	case FieldHouseNumber:
		return b.HouseNumber
	case FieldPostalCode:
		return b.PostalCode
	case FieldCity:
		return b.City
	case FieldUnitCount:
		return strconv.Itoa(b.UnitCount)
	case FieldRolloutType:
		return b.RolloutType
	case FieldRolloutStatus:
		return b.RolloutStatus
	case FieldFiberReady:
		return strconv.FormatBool(b.FiberReady)
	case FieldCableTV:
		return strconv.FormatBool(b.CableTV)
	case FieldTelephony:
		return strconv.FormatBool(b.Telephony)
	case FieldBasementAccess:
		return strconv.FormatBool(b.BasementAccess)
	case FieldExternalObjectID:
		return b.ExternalObjectID
	case FieldExternalNetworkID:
		return b.ExternalNetworkID
	}
	return ""
}

// copyField copies mutable field f from src to dst.
func copyField(dst, src *Building, f Field) {
	switch f {
	case FieldUnitCount:
		dst.UnitCount = src.UnitCount
	case FieldRolloutType:
		dst.RolloutType = src.RolloutType
	case FieldRolloutStatus:
		dst.RolloutStatus = src.RolloutStatus
	case FieldFiberReady:
		dst.FiberReady = src.FiberReady
	case FieldCableTV:
		dst.CableTV = src.CableTV
	case FieldTelephony:
		dst.Telephony = src.Telephony
	case FieldBasementAccess:
		dst.BasementAccess = src.BasementAccess
	case FieldExternalObjectID:
		dst.ExternalObjectID = src.ExternalObjectID
	case FieldExternalNetworkID:
		dst.ExternalNetworkID = src.ExternalNetworkID
	}
}

// Diff compares the mapped mutable fields of rec against existing with
// strict inequality. Unmapped fields are never compared, so a file that
// lacks a column cannot blank it out.
func Diff(rec, existing *Building, mapped FieldSet) []FieldChange {
	var changes []FieldChange
	for _, f := range mutableFields {
		if !mapped[f] {
			continue
		}
		oldVal, newVal := FieldValue(existing, f), FieldValue(rec, f)
		if oldVal != newVal {
			changes = append(changes, FieldChange{Field: f, Old: oldVal, New: newVal})
		}
	}
	return changes
}

// ApplyChanges returns existing with the mapped mutable fields of rec
// copied over. Identity, override and timestamp fields are kept.
func ApplyChanges(existing, rec *Building, mapped FieldSet) Building {
	out := *existing
	for _, f := range mutableFields {
		if mapped[f] {
			copyField(&out, rec, f)
		}
	}
	return out
}

// RowClass is the classification of one record.
type RowClass string

const (
	ClassNew       RowClass = "new"
	ClassUnchanged RowClass = "unchanged"
	ClassUpdate    RowClass = "update"
	ClassBlocked   RowClass = "blocked"
	// ClassDuplicate marks a later row resolving to the same building as
	// an earlier row of the same file.
	ClassDuplicate RowClass = "duplicate"
	// ClassUnresolved marks a K7 row whose building is not in the registry.
	ClassUnresolved RowClass = "unresolved"
)

// RowPlan is a classified record.
type RowPlan struct {
	Record
	Class   RowClass
	Match   *Building
	Changes []FieldChange
}

// Classify decides what happens to a building record: no match is new, an
// empty diff is unchanged, a diff on an entity with an active override is
// blocked and any other diff is an update.
func Classify(rec Record, match *Building, mapped FieldSet) RowPlan {
	plan := RowPlan{Record: rec, Match: match}
	if match == nil {
		plan.Class = ClassNew
		return plan
	}

	plan.Changes = Diff(&rec.Building, match, mapped)
	switch {
	case len(plan.Changes) == 0:
		plan.Class = ClassUnchanged
	case match.ManualOverrideActive:
		plan.Class = ClassBlocked
	default:
		plan.Class = ClassUpdate
	}
	return plan
}

// classifyK7 resolves a service entry to its building. Entries are
// insert-only; duplicates are filtered when committing.
func classifyK7(rec Record, match *Building) RowPlan {
	plan := RowPlan{Record: rec, Match: match}
	if match == nil {
		plan.Class = ClassUnresolved
		return plan
	}
	plan.K7.BuildingID = match.ID
	plan.Class = ClassNew
	return plan
}
