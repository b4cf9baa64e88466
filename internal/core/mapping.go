package core

import (
	"fmt"
	"sort"
	"strings"
)

// Field is a canonical column identifier.
type Field string

const (
	FieldStreet             Field = "street"
	FieldHouseNumber        Field = "house_number"
	FieldPostalCode         Field = "postal_code"
	FieldCity               Field = "city"
	FieldUnitCount          Field = "unit_count"
	FieldRolloutType        Field = "rollout_type"
	FieldRolloutStatus      Field = "rollout_status"
	FieldFiberReady         Field = "fiber_ready"
	FieldCableTV            Field = "cable_tv"
	FieldTelephony          Field = "telephony"
	FieldBasementAccess     Field = "basement_access"
	FieldExternalObjectID   Field = "external_object_id"
	FieldExternalNetworkID  Field = "external_network_id"
	FieldK7ID               Field = "k7_id"
	FieldK7Description      Field = "k7_description"
	FieldServiceCode        Field = "service_code"
	FieldServiceDescription Field = "service_description"

	// FieldSkip removes a column from consideration.
	FieldSkip Field = "skip"
)

var addressFields = []Field{FieldStreet, FieldHouseNumber, FieldPostalCode, FieldCity}

// requiredFields must be mapped before matching can start.
var requiredFields = []Field{FieldStreet, FieldHouseNumber}

// KindFields lists the fields a column may be mapped to for kind, in
// display order.
func KindFields(kind Kind) []Field {
	fields := append([]Field(nil), addressFields...)
	switch kind {
	case KindK7:
		return append(fields, FieldK7ID, FieldK7Description, FieldServiceCode, FieldServiceDescription)
	default:
		return append(fields, mutableFields...)
	}
}

func validForKind(kind Kind, f Field) bool {
	for _, kf := range KindFields(kind) {
		if kf == f {
			return true
		}
	}
	return false
}

// headerAliases maps normalized header text to canonical fields. Aliases
// outside the import's kind are ignored by AutoMap.
var headerAliases = map[string]Field{
	"strasse": FieldStreet, "straße": FieldStreet, "str": FieldStreet, "street": FieldStreet,
	"strassenname": FieldStreet, "straßenname": FieldStreet,

	"hausnummer": FieldHouseNumber, "hausnr": FieldHouseNumber, "hnr": FieldHouseNumber,
	"nr": FieldHouseNumber, "housenumber": FieldHouseNumber,

	"plz": FieldPostalCode, "postleitzahl": FieldPostalCode, "zip": FieldPostalCode,
	"postalcode": FieldPostalCode,

	"ort": FieldCity, "stadt": FieldCity, "city": FieldCity, "gemeinde": FieldCity, "wohnort": FieldCity,

	"we": FieldUnitCount, "wohneinheiten": FieldUnitCount, "anzahlwe": FieldUnitCount,
	"einheiten": FieldUnitCount, "unitcount": FieldUnitCount,

	"ausbauart": FieldRolloutType, "ausbautyp": FieldRolloutType, "technologie": FieldRolloutType,
	"rollouttype": FieldRolloutType,

	"ausbaustatus": FieldRolloutStatus, "status": FieldRolloutStatus, "rolloutstatus": FieldRolloutStatus,

	"glasfaser": FieldFiberReady, "glasfaserbereit": FieldFiberReady, "ftthready": FieldFiberReady,
	"fiberready": FieldFiberReady,

	"kabeltv": FieldCableTV, "kabelfernsehen": FieldCableTV, "catv": FieldCableTV,

	"telefonie": FieldTelephony, "telefon": FieldTelephony, "telephony": FieldTelephony,

	"kellerzugang": FieldBasementAccess, "keller": FieldBasementAccess, "basementaccess": FieldBasementAccess,

	"objektid": FieldExternalObjectID, "objektnummer": FieldExternalObjectID, "objid": FieldExternalObjectID,
	"externalobjectid": FieldExternalObjectID,

	"netzid": FieldExternalNetworkID, "netzwerkid": FieldExternalNetworkID,
	"externalnetworkid": FieldExternalNetworkID,

	"k7": FieldK7ID, "k7id": FieldK7ID, "k7nummer": FieldK7ID,
	"k7beschreibung": FieldK7Description, "k7bezeichnung": FieldK7Description,
	"k7description": FieldK7Description,

	"dienstcode": FieldServiceCode, "servicecode": FieldServiceCode, "leistungscode": FieldServiceCode,
	"produktcode": FieldServiceCode,
	"dienstbeschreibung": FieldServiceDescription, "servicebeschreibung": FieldServiceDescription,
	"leistung": FieldServiceDescription, "servicedescription": FieldServiceDescription,
}

// NormalizeHeader lower-cases h and drops everything except ASCII letters,
// digits and the German umlauts and ß.
func NormalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'ä', r == 'ö', r == 'ü', r == 'ß':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MappingError names required fields that have no source column.
type MappingError struct {
	Missing []Field
}

func (e *MappingError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return "missing required column mapping: " + strings.Join(names, ", ")
}

// ColumnMapping maps source headers to canonical fields. A field is
// targeted by at most one header.
type ColumnMapping struct {
	kind     Kind
	byHeader map[string]Field
	// overrides records operator assignments, including skips, so they can
	// be persisted and re-applied to later files.
	overrides map[string]Field
}

// NewColumnMapping returns an empty mapping for kind.
func NewColumnMapping(kind Kind) *ColumnMapping {
	return &ColumnMapping{
		kind:      kind,
		byHeader:  make(map[string]Field),
		overrides: make(map[string]Field),
	}
}

// AutoMap seeds a mapping from the alias table. When several headers alias
// the same field, the leftmost one wins.
func AutoMap(header []string, kind Kind) *ColumnMapping {
	m := NewColumnMapping(kind)
	taken := make(map[Field]bool)
	for _, h := range header {
		f, ok := headerAliases[NormalizeHeader(h)]
		if !ok || taken[f] || !validForKind(kind, f) {
			continue
		}
		if _, dup := m.byHeader[h]; dup {
			continue
		}
		m.byHeader[h] = f
		taken[f] = true
	}
	return m
}

// Clone returns an independent copy of m.
func (m *ColumnMapping) Clone() *ColumnMapping {
	c := NewColumnMapping(m.kind)
	for h, f := range m.byHeader {
		c.byHeader[h] = f
	}
	for h, f := range m.overrides {
		c.overrides[h] = f
	}
	return c
}

// Kind returns the import kind the mapping belongs to.
func (m *ColumnMapping) Kind() Kind { return m.kind }

// Assign maps header to field. FieldSkip removes the header. Any other
// header previously mapped to field is cleared.
func (m *ColumnMapping) Assign(header string, field Field) error {
	if field != FieldSkip && !validForKind(m.kind, field) {
		return fmt.Errorf("invalid enum: field %q is not available for %s imports", field, m.kind)
	}
	m.overrides[header] = field

	if field == FieldSkip {
		delete(m.byHeader, header)
		return nil
	}
	for h, f := range m.byHeader {
		if f == field && h != header {
			delete(m.byHeader, h)
		}
	}
	m.byHeader[header] = field
	return nil
}

// FieldFor returns the field header is mapped to, or FieldSkip.
func (m *ColumnMapping) FieldFor(header string) Field {
	if f, ok := m.byHeader[header]; ok {
		return f
	}
	return FieldSkip
}

// Has reports whether some header is mapped to f.
func (m *ColumnMapping) Has(f Field) bool {
	for _, mf := range m.byHeader {
		if mf == f {
			return true
		}
	}
	return false
}

// Entries returns a copy of the header to field assignments.
func (m *ColumnMapping) Entries() map[string]Field {
	out := make(map[string]Field, len(m.byHeader))
	for h, f := range m.byHeader {
		out[h] = f
	}
	return out
}

// Overrides returns a copy of the operator assignments, including skips.
func (m *ColumnMapping) Overrides() map[string]Field {
	out := make(map[string]Field, len(m.overrides))
	for h, f := range m.overrides {
		out[h] = f
	}
	return out
}

// MergeSaved re-applies persisted operator assignments for headers that
// exist in header. Assignments to fields unknown for the kind are dropped.
func (m *ColumnMapping) MergeSaved(saved map[string]Field, header []string) {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	// Sorted so that conflicting saved assignments resolve the same way every time.
	for _, h := range sortedKeys(saved) {
		if present[h] {
			_ = m.Assign(h, saved[h])
		}
	}
}

// Validate returns a *MappingError when a required field is unmapped.
func (m *ColumnMapping) Validate() error {
	var missing []Field
	for _, f := range requiredFields {
		if !m.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MappingError{Missing: missing}
	}
	return nil
}

// resolve returns the column index for each mapped field. The first
// occurrence of a duplicated header name is used.
func (m *ColumnMapping) resolve(header []string) map[Field]int {
	idx := make(map[Field]int, len(m.byHeader))
	for i, h := range header {
		f, ok := m.byHeader[h]
		if !ok {
			continue
		}
		if _, seen := idx[f]; !seen {
			idx[f] = i
		}
	}
	return idx
}

func sortedKeys(m map[string]Field) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
