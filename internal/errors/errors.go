package errors

import "fmt"

// ErrorCode represents a WebAiBridge error code.
type ErrorCode string

const (
	ErrTransportUnavailable ErrorCode = "TRANSPORT_UNAVAILABLE" // send attempted with no open connection
	ErrRequestTimeout       ErrorCode = "REQUEST_TIMEOUT"       // no matching response within the deadline
	ErrMalformedMessage     ErrorCode = "MALFORMED_MESSAGE"     // parse failure or missing required fields
	ErrPortExhausted        ErrorCode = "PORT_EXHAUSTED"        // discovery found zero live instances
	ErrContentUnresolved    ErrorCode = "CONTENT_UNRESOLVED"    // expansion hit a placeholder with no content
	ErrNotFound             ErrorCode = "NOT_FOUND"             // chip or key does not exist
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"       // bad parameters from a caller
	ErrInternal             ErrorCode = "INTERNAL"              // unexpected internal error
)

// BridgeError represents a structured error with code and details.
type BridgeError struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewTransportUnavailable creates an error for a send attempted while the
// bridge connection is not open. Surfaced immediately, never queued.
func NewTransportUnavailable() *BridgeError {
	return &BridgeError{
		Code:    ErrTransportUnavailable,
		Message: "no open bridge connection",
	}
}

// NewRequestTimeout creates an error for a request that received no matching
// response within its deadline.
func NewRequestTimeout(requestID string, timeoutMs int64) *BridgeError {
	return &BridgeError{
		Code:    ErrRequestTimeout,
		Message: fmt.Sprintf("request %s timed out after %dms", requestID, timeoutMs),
		Details: map[string]any{"request_id": requestID, "timeout_ms": timeoutMs},
	}
}

// NewMalformedMessage creates an error for an inbound message that failed to
// parse or was missing required fields. Dispatchers log and drop these; they
// never propagate to callers.
func NewMalformedMessage(reason string) *BridgeError {
	return &BridgeError{
		Code:    ErrMalformedMessage,
		Message: fmt.Sprintf("malformed bridge message: %s", reason),
	}
}

// NewPortExhausted creates an error for a discovery sweep that found no live
// instances. Discover itself returns an empty result, not an error; this
// constructor exists for callers that require at least one instance.
func NewPortExhausted(start, end int) *BridgeError {
	return &BridgeError{
		Code:    ErrPortExhausted,
		Message: fmt.Sprintf("no editor instances found on ports %d-%d", start, end),
		Details: map[string]any{"port_start": start, "port_end": end},
	}
}

// NewContentUnresolved creates an error for an expansion that encountered a
// placeholder whose content has not arrived. The placeholder is left in the
// buffer literally; the error is diagnostic only.
func NewContentUnresolved(placeholder string) *BridgeError {
	return &BridgeError{
		Code:    ErrContentUnresolved,
		Message: fmt.Sprintf("placeholder %q has no resolved content", placeholder),
		Details: map[string]any{"placeholder": placeholder},
	}
}

// NewNotFound creates an error for a chip or store key that does not exist.
func NewNotFound(identifier string) *BridgeError {
	return &BridgeError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInvalidRequest creates an error for invalid caller parameters.
func NewInvalidRequest(msg string) *BridgeError {
	return &BridgeError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewInternal creates an error for unexpected internal failures.
func NewInternal(err error) *BridgeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BridgeError{
		Code:    ErrInternal,
		Message: msg,
	}
}

// Is checks if an error is a BridgeError with the given code.
func Is(err error, code ErrorCode) bool {
	if bErr, ok := err.(*BridgeError); ok {
		return bErr.Code == code
	}
	return false
}
