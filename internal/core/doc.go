// Package core implements the building registry import and reconciliation
// pipeline.
//
// The package has no transport dependencies. Web handlers, the CLI and tests
// all drive it through [Service] or through the individual pipeline stages.
//
// # Pipeline
//
// An import run moves a file through these stages, each consuming the output
// of the previous one:
//
//  1. [NormalizeEncoding] picks UTF-8 or Windows-1252, repairs mojibake and
//     detects the delimiter.
//  2. [ParseRows] splits the text into header and rows with a quote-aware
//     state machine, dropping rows that match an ignore pattern.
//  3. [AutoMap] and [ColumnMapping] resolve source headers to canonical
//     [Field] values once; [Transform] then produces typed [Record] values.
//  4. [BuildMatchKeys] derives the postal-code and city keys used by the
//     [Registry] index loaded with [LoadRegistry].
//  5. [Classify] diffs each matched record against its entity and assigns
//     new, unchanged, update or blocked.
//  6. Blocked rows wait in the review set until an operator clears the
//     entity's override ([Service.ClearOverride]) or commits without them.
//  7. [Commit] writes accepted rows in fixed-size chunks, checking the
//     [CancelToken] before every chunk and every update.
//  8. The ledger ([CreateBatch], [FinalizeBatch], [RevertBatch]) records
//     one [UndoRecord] per created or updated entity so a batch can be
//     reverted exactly once.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference:
//
//   - DB001-DB007: database errors
//   - VAL001-VAL005: mapping and validation errors
//   - FILE001-FILE004: file errors
//   - IMP001-IMP007: import session errors
//   - REV001-REV002: batch reversal errors
//
// # Audit Logging
//
// Commits, reversals and override clearances are written to the audit log
// through [Service.LogAudit].
package core
