package service

import (
	"fmt"
	"strings"
)

// FieldNotResolvableError means the requested field is neither declared in
// the schema nor present in any stored submission.
type FieldNotResolvableError struct {
	Field       string
	Suggestions []string
}

func (e *FieldNotResolvableError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("field %q not found", e.Field)
	}
	return fmt.Sprintf("field %q not found (did you mean %s?)", e.Field, strings.Join(e.Suggestions, ", "))
}

// ValidationError reports bad client input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
