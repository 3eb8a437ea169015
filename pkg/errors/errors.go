// Package errors defines the sentinel errors shared by the indexing pipeline
// and its stores, and the classification used to decide whether a failed
// document can be skipped or must stop the process.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrEnvelopeTooLarge  = errors.New("corpus document too large")
	ErrMissingField      = errors.New("required JSON field missing")
	ErrMalformedEnvelope = errors.New("malformed corpus document")
	ErrDocIDMismatch     = errors.New("document ID mismatch")
	ErrDocumentOpen      = errors.New("a document is already open")
	ErrNoOpenDocument    = errors.New("no document is open")
	ErrSessionPoisoned   = errors.New("indexing session stopped after fatal error")
	ErrNotFound          = errors.New("not found")
	ErrCircuitOpen       = errors.New("circuit breaker is open")

	// ErrFatal marks errors after which indexing must not continue.
	ErrFatal = errors.New("fatal indexing error")
)

// InvariantError reports that the term index assigned a different document
// ID than the pipeline predicted. Blobs and offsets already written under the
// predicted ID no longer line up with the term index.
type InvariantError struct {
	Expected uint32
	Got      uint32
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: term index assigned docID %d, pipeline expected %d",
		ErrDocIDMismatch.Error(), e.Got, e.Expected)
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrDocIDMismatch || target == ErrFatal
}

// Fatal wraps err so that errors.Is(err, ErrFatal) holds.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() []error { return []error{e.err, ErrFatal} }

// IsRecoverable reports whether the pipeline may continue with the next
// document after err.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	return !errors.Is(err, ErrFatal)
}
