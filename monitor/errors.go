package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrPageNotFound is returned when a page ID does not exist.
	ErrPageNotFound = errors.New("monitor: page not found")
	// ErrSnapshotNotFound is returned when a snapshot ID does not exist
	// or does not belong to the page it was addressed through.
	ErrSnapshotNotFound = errors.New("monitor: snapshot not found")
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("monitor: invalid input")
)

// FetchError wraps a failed page fetch. The monitored page's state is never
// mutated when a check fails with a FetchError, apart from the check log.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("monitor: fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// StorageError wraps a persistence failure during a check. A mutation that
// fails this way must not be considered committed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("monitor: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
