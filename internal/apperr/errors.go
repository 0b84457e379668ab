// Package apperr holds the error kinds shared across datamap import and extraction.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrMalformedRecord     = errors.New("malformed record")
	ErrDuplicateLocation   = errors.New("duplicate location")
	ErrSourceUnreadable    = errors.New("source unreadable")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrPartialWriteRefused = errors.New("partial write refused")

	// ErrSchemaMissing is a StoreUnavailable that can be fixed by resetting the schema.
	ErrSchemaMissing = fmt.Errorf("%w: schema missing, re-run with --initial", ErrStoreUnavailable)
)

// RecordError describes one rejected definition line.
type RecordError struct {
	Line   int
	Text   string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

func (e *RecordError) Unwrap() error { return ErrMalformedRecord }

// DuplicateLocationError reports two keys bound to the same sheet and cell.
type DuplicateLocationError struct {
	Sheet     string
	Cellref   string
	FirstKey  string
	FirstLine int
	Key       string
	Line      int
}

func (e *DuplicateLocationError) Error() string {
	return fmt.Sprintf("duplicate location %s!%s: key %q (line %d) conflicts with key %q (line %d)",
		e.Sheet, e.Cellref, e.Key, e.Line, e.FirstKey, e.FirstLine)
}

func (e *DuplicateLocationError) Unwrap() error { return ErrDuplicateLocation }

// StageError is returned by a failed run. Accepted and Rejected count the
// definition lines seen before the failure.
type StageError struct {
	Stage    string
	Accepted int
	Rejected int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("failed in stage %s (accepted %d, rejected %d): %v", e.Stage, e.Accepted, e.Rejected, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
