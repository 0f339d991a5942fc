package messaging

import (
	"errors"
	"fmt"
)

// CloseCodeLoggedOut is the disconnect code the backend uses when the
// session was explicitly invalidated. It is terminal: reconnecting with the
// same credentials can never succeed.
const CloseCodeLoggedOut = 401

// CloseError describes why a connection ended.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed (code %d)", e.Code)
	}
	return fmt.Sprintf("connection closed (code %d): %s", e.Code, e.Reason)
}

// IsLoggedOut reports whether cause marks the session as explicitly logged
// out. Every other cause (including nil) is treated as retryable.
func IsLoggedOut(cause error) bool {
	var closeErr *CloseError
	if errors.As(cause, &closeErr) {
		return closeErr.Code == CloseCodeLoggedOut
	}
	return false
}
