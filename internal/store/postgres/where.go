package postgres

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder assembles a WHERE clause with numbered placeholders.
// Empty values are skipped so optional filters can be added unconditionally.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns an empty builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

func (w *WhereBuilder) add(cond string, arg any) {
	w.conditions = append(w.conditions, fmt.Sprintf(cond, w.argIndex))
	w.args = append(w.args, arg)
	w.argIndex++
}

// Add adds "column = $n" unless value is empty.
func (w *WhereBuilder) Add(column, value string) {
	if value == "" {
		return
	}
	w.add(column+" = $%d", value)
}

// AddUUID adds "column = $n" for a UUID column unless id is empty or
// malformed.
func (w *WhereBuilder) AddUUID(column, id string) {
	u := ToPgUUID(id)
	if !u.Valid {
		return
	}
	w.add(column+" = $%d", u)
}

// AddSince adds "column >= $n" unless t is zero.
func (w *WhereBuilder) AddSince(column string, t time.Time) {
	if t.IsZero() {
		return
	}
	w.add(column+" >= $%d", t)
}

// NextArgIndex returns the number of the next placeholder.
func (w *WhereBuilder) NextArgIndex() int {
	return w.argIndex
}

// Build returns the clause with a leading space, or "" with nil args when
// no conditions were added.
func (w *WhereBuilder) Build() (string, []any) {
	if len(w.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(w.conditions, " AND "), w.args
}
