package store

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResult is returned when the store accepted a write but returned no rows.
	ErrEmptyResult = errors.New("store returned no rows")

	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrUnfilteredUpdate guards against updates without a WHERE clause.
	ErrUnfilteredUpdate = errors.New("update requires at least one filter")

	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate key")
)

// Error wraps a backend failure with the operation and table it came from.
type Error struct {
	Op    string // select, insert, update, upsert
	Table string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Table: table, Err: err}
}
