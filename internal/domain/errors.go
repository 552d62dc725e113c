package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress is returned when another run holds the pipeline lock.
	ErrRunInProgress = errors.New("pipeline: another run is in progress")
	// ErrCancelled marks a run stopped before a proposal could be emitted.
	ErrCancelled = errors.New("pipeline: run cancelled")
	// ErrRunNotFound is returned by the ledger for unknown run ids.
	ErrRunNotFound = errors.New("ledger: run not found")
	// ErrLockLost is returned when renewing a lock the run no longer holds.
	ErrLockLost = errors.New("ledger: run lock no longer held")
	// ErrNameExists guards the append-only catalog.
	ErrNameExists = errors.New("catalog: name already exists")
)

// FetchError is a per-origin fetch failure. The run continues without that origin.
type FetchError struct {
	Origin Origin
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.Origin, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionSchemaError means the backend answered with something that is not
// a valid candidate list. The document contributes zero candidates.
type ExtractionSchemaError struct {
	DocumentID string
	Reason     string
}

func (e *ExtractionSchemaError) Error() string {
	return fmt.Sprintf("extraction schema violation for %s: %s", e.DocumentID, e.Reason)
}

// EmissionFailure is fatal for a run: no reviewable unit exists and nothing was written.
type EmissionFailure struct {
	Channel string
	Err     error
}

func (e *EmissionFailure) Error() string {
	return fmt.Sprintf("emit proposal via %s: %v", e.Channel, e.Err)
}

func (e *EmissionFailure) Unwrap() error { return e.Err }
