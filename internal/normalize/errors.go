package normalize

import (
	"fmt"

	"github.com/ppiankov/lexruler/internal/model"
)

// ErrEmptyLabel is returned when no category label is supplied
var ErrEmptyLabel = model.ErrEmptyLabel

// MissingFieldError reports a record whose name could not be read. A pass
// that hits it returns no rules at all.
type MissingFieldError struct {
	Index int    // Position of the record in the input
	Path  string // Configured field path, if known
	Err   error  // ErrFieldNotFound, ErrFieldNotString or an accessor error
}

func (e *MissingFieldError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("record %d: missing name field: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("record %d: missing name field %q: %v", e.Index, e.Path, e.Err)
}

func (e *MissingFieldError) Unwrap() error {
	return e.Err
}

// EmptyNameError is returned under the reject policy for a blank name
type EmptyNameError struct {
	Index int
}

func (e *EmptyNameError) Error() string {
	return fmt.Sprintf("record %d: empty name", e.Index)
}

// EmptyNameWarning records a blank-name record dropped under the skip policy
type EmptyNameWarning struct {
	Index int
}

func (w EmptyNameWarning) String() string {
	return fmt.Sprintf("record %d: empty name, skipped", w.Index)
}
