package core

import (
	"fmt"
	"strings"
	"time"
)

// WorkflowMode selects what happens after analysis.
type WorkflowMode string

const (
	// ModeManual waits for an explicit commit so blocked rows can be reviewed.
	ModeManual WorkflowMode = "manual"
	// ModeAutomatic commits right after analysis; blocked rows are skipped.
	ModeAutomatic WorkflowMode = "automatic"
)

// Settings is the operator-editable import configuration. It is loaded
// once when a session starts and passed explicitly to the stages that use it.
type Settings struct {
	// IgnorePatterns are case-insensitive substrings; matching rows are dropped.
	IgnorePatterns []string     `json:"ignorePatterns"`
	DefaultMode    WorkflowMode `json:"defaultMode"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// DefaultSettings is used until an operator saves settings.
func DefaultSettings() Settings {
	return Settings{DefaultMode: ModeManual}
}

// Normalize trims patterns, drops empty ones and fills in the default mode.
func (s Settings) Normalize() Settings {
	patterns := make([]string, 0, len(s.IgnorePatterns))
	for _, p := range s.IgnorePatterns {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	s.IgnorePatterns = patterns
	if s.DefaultMode == "" {
		s.DefaultMode = ModeManual
	}
	return s
}

// Validate checks the workflow mode.
func (s Settings) Validate() error {
	switch s.DefaultMode {
	case ModeManual, ModeAutomatic:
		return nil
	}
	return fmt.Errorf("invalid enum: default mode %q must be manual or automatic", s.DefaultMode)
}
