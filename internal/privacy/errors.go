package privacy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidOption indicates a requested category is outside the known set.
	ErrInvalidOption = errors.New("invalid option")

	// ErrAnnotation indicates the entity annotator failed for a buffer.
	ErrAnnotation = errors.New("entity annotation failed")
)

// InvalidOptionError lists every unknown category name of a request.
type InvalidOptionError struct {
	Names []string
}

func (e *InvalidOptionError) Error() string {
	quoted := make([]string, len(e.Names))
	for i, n := range e.Names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	valid := make([]string, len(processingOrder))
	for i, c := range processingOrder {
		valid[i] = string(c)
	}
	return fmt.Sprintf("%s: unknown categories %s (valid: all, %s)",
		ErrInvalidOption.Error(), strings.Join(quoted, ", "), strings.Join(valid, ", "))
}

// Unwrap lets errors.Is(err, ErrInvalidOption) match.
func (e *InvalidOptionError) Unwrap() error {
	return ErrInvalidOption
}
