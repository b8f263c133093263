// Package store defines the tabular store contract the importer writes to.
//
// A Store is deliberately small: equality-filtered select, insert and update,
// each returning the affected rows. Backends exist for PostgreSQL (pgx) and
// for PostgREST/Supabase over HTTP, plus an in-memory store used by tests.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Table names used by the importer.
const (
	TableCourses = "courses"
	TableLessons = "lessons"
)

// Record is a single row keyed by column name.
type Record map[string]any

// ID returns the row's "id" column as a string.
func (r Record) ID() (string, bool) {
	id := r.String("id")
	return id, id != ""
}

// String returns a column as a string, or "" if absent or null.
// UUID values are rendered in canonical form.
func (r Record) String(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case [16]byte:
		return uuid.UUID(s).String()
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

// Columns returns the record's column names in sorted order.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter is an equality condition on a single column.
type Filter struct {
	Column string
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Store is the generic tabular-store client.
//
// Every operation returns the affected rows. An empty slice with a nil error
// means the store accepted the call but reported nothing back.
type Store interface {
	Select(ctx context.Context, table string, columns []string, filters ...Filter) ([]Record, error)
	Insert(ctx context.Context, table string, record Record) ([]Record, error)
	Update(ctx context.Context, table string, record Record, filters ...Filter) ([]Record, error)
}

// Upserter is implemented by stores that can insert-or-update atomically
// against a unique constraint on the conflict columns.
//
// When update is false an existing row is left untouched but still returned.
type Upserter interface {
	Upsert(ctx context.Context, table string, record Record, conflict []string, update bool) ([]Record, error)
}

// First returns the first row of a result set, or ErrEmptyResult.
func First(rows []Record, err error) (Record, error) {
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyResult
	}
	return rows[0], nil
}
