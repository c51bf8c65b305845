package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned for config files with an unknown extension.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// ValidationError collects every problem found by Validate.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "config: validation failed"
	case 1:
		return "config: validation failed: " + e.Errors[0]
	default:
		return fmt.Sprintf("config: validation failed with %d errors:\n  - %s",
			len(e.Errors), strings.Join(e.Errors, "\n  - "))
	}
}

func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// ToError returns e when it holds errors, nil otherwise.
func (e *ValidationError) ToError() error {
	if len(e.Errors) > 0 {
		return e
	}
	return nil
}
