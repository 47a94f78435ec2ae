package classify

import (
	"errors"
	"fmt"
)

// ClassificationError reports a backend failure: the external call errored,
// timed out, or returned a response that violates the contract. The adapter
// degrades the affected message to an Unparseable signal and surfaces this
// error alongside it for logging; it is never fatal.
type ClassificationError struct {
	Backend string
	Err     error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify: %s backend: %v", e.Backend, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

func newClassificationError(backend string, err error) *ClassificationError {
	return &ClassificationError{Backend: backend, Err: err}
}

// IsClassification reports whether err is a ClassificationError.
func IsClassification(err error) bool {
	var ce *ClassificationError
	return errors.As(err, &ce)
}
