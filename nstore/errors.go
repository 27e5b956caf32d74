package nstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get and Remove for keys that have no document
	ErrNotFound = errors.New("nstore: document not found")
	// ErrMalformedRecord is returned when the bytes pointed to by the index
	// don't form a valid record
	ErrMalformedRecord = errors.New("nstore: malformed record")
	// ErrKeyCollision is returned when we failed to generate a unique key
	ErrKeyCollision = errors.New("nstore: failed to generate unique key")
	// ErrInvalidKey is returned for keys that are empty or contain tab or newline
	ErrInvalidKey = errors.New("nstore: invalid key")
	// ErrInvalidPayload is returned for raw payloads that are empty, contain
	// a newline or are not valid JSON
	ErrInvalidPayload = errors.New("nstore: invalid payload")
	// ErrClosed is returned for operations on a closed store
	ErrClosed = errors.New("nstore: store is closed")
	// ErrCompacting is returned by Compact and Clear when a compaction
	// is already queued or running
	ErrCompacting = errors.New("nstore: compaction already in progress")
)

// IOError describes a failed file operation
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("nstore: %s %s: %s", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func ioErr(op string, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// IsNotFound returns true if err is (or wraps) ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
