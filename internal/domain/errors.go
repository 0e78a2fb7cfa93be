package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is the expected negative outcome of a lookup, not a failure.
var ErrNotFound = errors.New("scene not found")

// FetchError is a network or remote-side failure. Retryable; fatal to a pass
// only when it hits the bulk listing fetch.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError marks one malformed input row or file. Always scoped to a single
// record; never aborts a pass.
type ParseError struct {
	Subject string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Subject, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// GeometryError marks spatial data that cannot form a valid footprint.
type GeometryError struct {
	SceneID string
	Reason  string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("scene %s: unusable geometry: %s", e.SceneID, e.Reason)
}

// StoreError is a transaction or connectivity failure. It aborts the current
// sub-batch or scene only; the work is retried on the next pass.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
