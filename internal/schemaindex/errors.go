package schemaindex

import "fmt"

// ParseError reports a schema document that cannot be indexed at all.
type ParseError struct {
	FormUID string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema %s: %s: %v", e.FormUID, e.Reason, e.Err)
	}
	return fmt.Sprintf("schema %s: %s", e.FormUID, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
