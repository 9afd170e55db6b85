package telegram

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by *APIError through errors.Is.
var (
	// ErrUnauthorized indicates the bot token was rejected.
	ErrUnauthorized = errors.New("bot token rejected")
	// ErrForbidden indicates the bot may not act in the target chat.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates another getUpdates consumer or a webhook is active.
	ErrConflict = errors.New("conflicting update consumer")
	// ErrTooManyRequests indicates flood control kicked in.
	ErrTooManyRequests = errors.New("too many requests")
)

// ErrInvalidState indicates a response envelope that violates the ok/result/
// description contract.
var ErrInvalidState = errors.New("invalid server response")

// APIError is a failure reported by the Bot API itself (ok=false).
type APIError struct {
	Method      string
	Description string
	ErrorCode   int
	// RetryAfter and MigrateToChatID are copied from the response parameters
	// when present.
	RetryAfter      int
	MigrateToChatID int64
}

func (e *APIError) Error() string {
	if e.ErrorCode != 0 {
		return fmt.Sprintf("telegram: %s: %s (code %d)", e.Method, e.Description, e.ErrorCode)
	}
	return fmt.Sprintf("telegram: %s: %s", e.Method, e.Description)
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.ErrorCode {
	case 401:
		return target == ErrUnauthorized
	case 403:
		return target == ErrForbidden
	case 409:
		return target == ErrConflict
	case 429:
		return target == ErrTooManyRequests
	}
	return false
}

// TransportError is a network or IO failure while talking to the API.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("telegram: %s: transport: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means the response body was not the expected JSON.
type DecodeError struct {
	Method string
	Body   []byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("telegram: %s: decode response: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InvalidStateError carries the method whose response broke the envelope
// contract. It matches ErrInvalidState.
type InvalidStateError struct {
	Method string
	OK     bool
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("telegram: %s: %v (ok=%t)", e.Method, ErrInvalidState, e.OK)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// InvalidTokenError is returned when a token cannot form an API URL.
type InvalidTokenError struct {
	Err error
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("telegram: invalid token: %v", e.Err)
}

func (e *InvalidTokenError) Unwrap() error { return e.Err }

// EnvError is returned by FromEnv when the variable is unset or empty.
type EnvError struct {
	Var string
}

func (e *EnvError) Error() string {
	return fmt.Sprintf("telegram: environment variable %s is not set", e.Var)
}
