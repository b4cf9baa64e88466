package core

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies which registry an import targets.
type Kind string

const (
	KindBuildings Kind = "buildings"
	KindK7        Kind = "k7"
)

// Kinds lists every supported import kind.
var Kinds = []Kind{KindBuildings, KindK7}

// ParseKind converts a user supplied kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindBuildings:
		return KindBuildings, nil
	case KindK7:
		return KindK7, nil
	}
	return "", fmt.Errorf("unknown import kind: %q", s)
}

// Building is a registry entity and the canonical form of a building row.
type Building struct {
	ID                   string    `json:"id"`
	Street               string    `json:"street"`
	HouseNumber          string    `json:"house_number"`
	PostalCode           string    `json:"postal_code"`
	City                 string    `json:"city"`
	UnitCount            int       `json:"unit_count"`
	RolloutType          string    `json:"rollout_type"`
	RolloutStatus        string    `json:"rollout_status"`
	FiberReady           bool      `json:"fiber_ready"`
	CableTV              bool      `json:"cable_tv"`
	Telephony            bool      `json:"telephony"`
	BasementAccess       bool      `json:"basement_access"`
	ExternalObjectID     string    `json:"external_object_id"`
	ExternalNetworkID    string    `json:"external_network_id"`
	HasManualOverride    bool      `json:"has_manual_override"`
	ManualOverrideActive bool      `json:"manual_override_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Address renders the building's address for display.
func (b Building) Address() string {
	addr := strings.TrimSpace(b.Street + " " + b.HouseNumber)
	place := strings.TrimSpace(b.PostalCode + " " + b.City)
	if place == "" {
		return addr
	}
	return addr + ", " + place
}

// K7ServiceEntry is a per-building service record.
type K7ServiceEntry struct {
	ID                 string    `json:"id"`
	BuildingID         string    `json:"building_id"`
	K7ID               string    `json:"k7_id"`
	K7Description      string    `json:"k7_description"`
	ServiceCode        string    `json:"service_code"`
	ServiceDescription string    `json:"service_description"`
	CreatedAt          time.Time `json:"created_at"`
}

// K7Key is the duplicate-suppression key for service entries. Entries that
// differ only in their descriptions share a key.
type K7Key struct {
	BuildingID  string
	K7ID        string
	ServiceCode string
}

// Key returns the entry's duplicate-suppression key.
func (e K7ServiceEntry) Key() K7Key {
	return K7Key{BuildingID: e.BuildingID, K7ID: e.K7ID, ServiceCode: e.ServiceCode}
}

// FieldChange is one differing field between a record and its entity.
type FieldChange struct {
	Field Field  `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// UndoKind discriminates undo records.
type UndoKind string

const (
	UndoCreate UndoKind = "create"
	UndoUpdate UndoKind = "update"
)

// UndoRecord holds what is needed to reverse one entity's change.
// PreImage is set for updates only.
type UndoRecord struct {
	Kind     UndoKind  `json:"kind"`
	EntityID string    `json:"entity_id"`
	PreImage *Building `json:"pre_image,omitempty"`
}

// ImportBatch is one ledgered import run.
type ImportBatch struct {
	ID            string       `json:"id"`
	Kind          Kind         `json:"kind"`
	FileName      string       `json:"fileName"`
	RowsProcessed int          `json:"rowsProcessed"`
	RowsCreated   int          `json:"rowsCreated"`
	RowsUpdated   int          `json:"rowsUpdated"`
	RowsSkipped   int          `json:"rowsSkipped"`
	AffectedIDs   []string     `json:"affectedIds"`
	UndoRecords   []UndoRecord `json:"undoRecords"`
	Errors        []string     `json:"errors"`
	IsReverted    bool         `json:"isReverted"`
	CreatedAt     time.Time    `json:"createdAt"`
	RevertedAt    *time.Time   `json:"revertedAt,omitempty"`
}

// ImportPhase indicates the current stage of an import session.
type ImportPhase string

const (
	PhaseStarting   ImportPhase = "starting"
	PhaseDecoding   ImportPhase = "decoding"
	PhaseMapping    ImportPhase = "mapping"
	PhaseLoading    ImportPhase = "loading_registry"
	PhaseMatching   ImportPhase = "matching"
	PhaseReview     ImportPhase = "review"
	PhaseCommitting ImportPhase = "committing"
	PhaseComplete   ImportPhase = "complete"
	PhaseFailed     ImportPhase = "failed"
	PhaseCancelled  ImportPhase = "cancelled"
)

// Terminal reports whether no further progress follows this phase.
func (p ImportPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseCancelled
}

// ImportProgress is a progress snapshot of a running session.
type ImportProgress struct {
	ImportID string      `json:"importId"`
	Kind     Kind        `json:"kind"`
	FileName string      `json:"fileName"`
	Phase    ImportPhase `json:"phase"`
	Current  int         `json:"current"`
	Total    int         `json:"total"`
	Label    string      `json:"label"`
	Error    string      `json:"error,omitempty"`
}

// Percent returns the progress as a percentage (0-100).
func (p ImportProgress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := (p.Current * 100) / p.Total
	if pct > 100 {
		return 100
	}
	return pct
}

// ProgressFunc receives progress updates from long-running stages.
type ProgressFunc func(ImportProgress)

func (f ProgressFunc) report(p ImportProgress) {
	if f != nil {
		f(p)
	}
}

// ClassCounts tallies row classifications of one analysis.
type ClassCounts struct {
	New        int `json:"new"`
	Unchanged  int `json:"unchanged"`
	Update     int `json:"update"`
	Blocked    int `json:"blocked"`
	Duplicate  int `json:"duplicate"`
	Unresolved int `json:"unresolved"`
	Ignored    int `json:"ignored"`
	Invalid    int `json:"invalid"`
}

// ImportSummary is the end-of-run report, produced whether the run
// completed, was cancelled or hit partial failures.
type ImportSummary struct {
	ImportID   string        `json:"importId"`
	BatchID    string        `json:"batchId,omitempty"`
	Kind       Kind          `json:"kind"`
	FileName   string        `json:"fileName"`
	Phase      ImportPhase   `json:"phase"`
	Counts     ClassCounts   `json:"counts"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Duplicates int           `json:"duplicates"`
	Cancelled  bool          `json:"cancelled"`
	Errors     []string      `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
}
