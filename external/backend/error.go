package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Failure reasons produced by the client itself. Any other reason comes from the backend.
const (
	ReasonNetwork         = "NETWORK"
	ReasonInvalidResponse = "INVALID_RESPONSE"
	ReasonTimeout         = "TIMEOUT"
	ReasonUnreachable     = "UNREACHABLE"
	ReasonUnknown         = "UNKNOWN"
	ReasonNotConfigured   = "NOT_CONFIGURED"
	ReasonInvalidRequest  = "INVALID_REQUEST"
)

const (
	defaultFailureMessage  = "Request failed."
	invalidResponseMessage = "Invalid response format from server."
	timeoutMessage         = "Request timeout. The server is taking too long to respond. Please try again."
	unreachableMessage     = "Cannot connect to server. Check the network connection and the backend URL."
)

// Error is a failed backend call.
type Error struct {
	Action  string
	Reason  string
	Message string
	Status  int
	Raw     json.RawMessage

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Action, e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Transient reports whether repeating the call may succeed.
func (e *Error) Transient() bool {
	switch e.Reason {
	case ReasonNetwork, ReasonTimeout, ReasonUnreachable:
		return true
	}
	return false
}

// ReasonOf returns the reason of a backend error in err's chain, or "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
