package chat

import (
	"errors"
	"fmt"
)

// Error is a domain validation/authorization failure carrying the message
// that is routed back to the issuing client. Every precondition failure in
// the service, the verification helpers and the dispatcher uses this one
// shape; there are no structured error codes.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func Errorf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// IsDomainError reports whether err is a user-facing domain error (as
// opposed to an infrastructure failure).
func IsDomainError(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
