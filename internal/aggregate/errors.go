package aggregate

import "fmt"

// InsufficientDataError means no usable numeric value was found. It is a
// client input problem, not a fault.
type InsufficientDataError struct {
	Field string
}

func (e *InsufficientDataError) Error() string {
	if e.Field == "" {
		return "no numeric values to summarize"
	}
	return fmt.Sprintf("no numeric values for field %q", e.Field)
}
