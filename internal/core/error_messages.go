package core

// error_messages.go maps technical errors to user-facing messages with a
// code operators can quote to support.
//
// Codes by category:
//
//	DB001-DB007    database constraint and connectivity errors
//	VAL001-VAL005  column mapping and cell value errors
//	FILE001-FILE004 upload and file format errors
//	IMP001-IMP007  import session errors
//	REV001-REV002  batch reversal errors
//	ERR000         fallback; check the application log for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns precede general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Database constraints
	{"duplicate key", UserMessage{"A record with this key already exists", "Check the file for repeated addresses", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check the file for repeated addresses", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Check the file for repeated addresses", "DB002"}},
	{"foreign key", UserMessage{"Referenced building does not exist", "Import the buildings before their K7 entries", "DB003"}},

	// Database connectivity
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Mapping and values
	{"missing required column mapping", UserMessage{"Street and house number columns must be mapped", "Assign the missing columns in the mapping step", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Use whole numbers for unit counts", "VAL002"}},
	{"invalid boolean", UserMessage{"Invalid yes/no value detected", "Use ja/nein, yes/no, x or 1/0", "VAL003"}},
	{"invalid enum", UserMessage{"Value is not in the allowed list", "Check the allowed values for this field", "VAL004"}},
	{"unknown column", UserMessage{"Column is not in the file header", "Check the column names of the uploaded file", "VAL005"}},

	// Files
	{"file too large", UserMessage{"File exceeds the maximum size limit", "Split the file into smaller parts", "FILE001"}},
	{"empty file", UserMessage{"The file has no data rows", "Upload a file with a header and at least one row", "FILE002"}},
	{"no file provided", UserMessage{"No file was selected", "Select a delimited text file to import", "FILE003"}},
	{"unknown import kind", UserMessage{"Unknown import type", "Use buildings or k7", "FILE004"}},

	// Import sessions
	{"import cancelled", UserMessage{"Import was cancelled", "Rows written before cancellation can be reverted from the batch list", "IMP001"}},
	{"another import is in progress", UserMessage{"Another import is running", "Wait for it to finish and try again", "IMP002"}},
	{"import session not found", UserMessage{"Import session not found", "The session may have expired. Start a new import", "IMP003"}},
	{"import session state", UserMessage{"The import is not at a step that allows this action", "Refresh the import status and try again", "IMP004"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "IMP005"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Please try again", "IMP006"}},
	{"entity not found", UserMessage{"Building not found", "It may have been deleted. Refresh and try again", "IMP007"}},

	// Reversal
	{"batch already reverted", UserMessage{"This batch has already been reverted", "No further action is needed", "REV001"}},
	{"batch not found", UserMessage{"Import batch not found", "Verify the batch id", "REV002"}},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	msg := MapError(ErrAlreadyReverted)
//	// msg.Code == "REV001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "This batch has already been reverted (Code: REV001). No further action is needed"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message. The
// original error stays reachable through Unwrap for logging and errors.Is.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
