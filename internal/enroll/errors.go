package enroll

import (
	"errors"
	"fmt"
)

// ErrNoImages is returned when an enrollment directory holds no images.
var ErrNoImages = errors.New("no enrollment images")

// ErrEmptyRoster is returned when a roster file lists no entries.
var ErrEmptyRoster = errors.New("roster is empty")

// EnrollmentError reports why the roster could not be built. It is always fatal to
// session start.
type EnrollmentError struct {
	Label string
	Path  string
	Err   error
}

func (e *EnrollmentError) Error() string {
	switch {
	case e.Label != "" && e.Path != "":
		return fmt.Sprintf("enroll %q (%s): %v", e.Label, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("enroll %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("enroll: %v", e.Err)
	}
}

func (e *EnrollmentError) Unwrap() error {
	return e.Err
}
