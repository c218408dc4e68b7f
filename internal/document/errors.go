package document

import (
	"errors"
	"fmt"
)

// ErrMalformedInput indicates content that is not valid UTF-8 or cannot be
// parsed in its declared format.
var ErrMalformedInput = errors.New("malformed input")

// MalformedInputError describes a document that could not be decoded.
// It matches both ErrMalformedInput and the underlying parse error.
type MalformedInputError struct {
	Path   string // file path or request id, may be empty
	Format Format
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s document %s: %v", ErrMalformedInput.Error(), e.Format, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s document: %v", ErrMalformedInput.Error(), e.Format, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *MalformedInputError) Unwrap() []error {
	return []error{ErrMalformedInput, e.Err}
}

var errInvalidUTF8 = errors.New("invalid UTF-8")
