package errors

import (
	"errors"
	"fmt"
)

// Error Handling Guidelines:
//
// For gateway calls:
//   - Return *GatewayError when the server answered with success:false
//     (its message is shown to the user verbatim)
//   - Return ErrUnauthorized for any 401; the store tears the session
//     down globally, individual callers do not handle it
//   - Wrap transport failures with fmt.Errorf("...: %w", err); they are
//     normalized to NetworkErrorMessage at the store boundary
//
// For the state store:
//   - UserMessage() is the only place raw errors become UI strings;
//     views never see transport errors
//
// For storage/crypto code:
//   - Never return errors upward; degrade, log, and count. A broken
//     disk must read as "no session", not as a visible failure.

// message shown for any failure where the server never answered
const NetworkErrorMessage = "network error occurred"

// signals a 401 from any gateway call; handled globally, not per-call
var ErrUnauthorized = errors.New("unauthorized")

// represents a success:false answer from the auth service
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// normalizes any gateway call error into the single string that enters
// state. Server-provided messages pass through verbatim; everything
// else collapses to the generic network message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}

	if errors.Is(err, ErrUnauthorized) {
		return "session expired, please sign in again"
	}

	return NetworkErrorMessage
}

// re-exported stdlib helpers so callers need a single errors import
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
