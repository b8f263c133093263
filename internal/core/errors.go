package core

import (
	"errors"
	"fmt"
)

// ErrInput marks a fatal input failure: the source CSV or the artifacts
// could not be read or parsed. The run is aborted before any store call.
var ErrInput = errors.New("invalid input")

// errNoOriginalIdx marks an artifact course that cannot be mapped.
var errNoOriginalIdx = errors.New("artifact record has no original_idx")

func inputError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

func wrapInput(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInput, what, err)
}

// IsInputError reports whether err is a fatal input failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInput)
}
