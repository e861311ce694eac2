package store

import (
	"errors"
	"fmt"
)

// StateError is returned by the guarded task transitions (pick, complete,
// review submission) and by job phase advancement. Status is the HTTP status
// the API layer should translate it to: 404 for missing or out-of-scope rows,
// 400 for precondition violations.
type StateError struct {
	Status  int
	Message string
}

func (e *StateError) Error() string { return e.Message }

// NewNotFound returns a 404-class StateError for the given entity and ID.
func NewNotFound(entity, id string) *StateError {
	return &StateError{Status: 404, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// NewPrecondition returns a 400-class StateError with the given message.
// The message always names the actual current state so callers can present
// an actionable error.
func NewPrecondition(format string, args ...interface{}) *StateError {
	return &StateError{Status: 400, Message: fmt.Sprintf(format, args...)}
}

// AsStateError unwraps err into a StateError if it is one.
func AsStateError(err error) (*StateError, bool) {
	var se *StateError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
