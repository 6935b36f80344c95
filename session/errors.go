package session

import (
	"context"
	"errors"
	"fmt"
)

// Reason classifies why a reader session ended.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonTimeout
	ReasonUserCanceled
	ReasonReadError
	ReasonFirstRead // session ended after the first successful read
)

func (r Reason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonUserCanceled:
		return "userCanceled"
	case ReasonReadError:
		return "readError"
	case ReasonFirstRead:
		return "firstRead"
	default:
		return "unknown"
	}
}

// ParseReason maps a reason name to a Reason; unknown names map to ReasonUnknown.
func ParseReason(s string) Reason {
	switch s {
	case "timeout":
		return ReasonTimeout
	case "userCanceled", "canceled", "cancelled":
		return ReasonUserCanceled
	case "readError":
		return ReasonReadError
	case "firstRead", "firstNDEFTagRead":
		return ReasonFirstRead
	default:
		return ReasonUnknown
	}
}

// Sentinel errors hosts may pass to OnSessionInvalidated.
var (
	ErrTimeout       = errors.New("reader session timed out")
	ErrUserCanceled  = errors.New("reader session canceled by user")
	ErrFirstRead     = errors.New("reader session ended after first read")
	ErrAlreadyActive = errors.New("reader session already active")
	ErrNotActive     = errors.New("no active reader session")
)

// SessionError describes the end of a reader session.
type SessionError struct {
	Reason Reason
	Host   string
	Cause  error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s session invalidated (%s): %v", e.Host, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s session invalidated (%s)", e.Host, e.Reason)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// NewSessionError wraps err, deriving the reason from it when possible.
// An existing *SessionError is returned with its host filled in.
func NewSessionError(host string, err error) *SessionError {
	var se *SessionError
	if errors.As(err, &se) {
		out := *se
		if out.Host == "" {
			out.Host = host
		}
		return &out
	}
	return &SessionError{Reason: reasonOf(err), Host: host, Cause: err}
}

func reasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrUserCanceled), errors.Is(err, context.Canceled):
		return ReasonUserCanceled
	case errors.Is(err, ErrFirstRead):
		return ReasonFirstRead
	default:
		return ReasonReadError
	}
}
