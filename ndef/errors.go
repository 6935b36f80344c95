package ndef

import (
	"errors"
	"strings"
)

// ErrorCode identifies a class of NDEF error for programmatic handling.
type ErrorCode int

const (
	// ErrCodeDecode means a payload could not be decoded as text.
	ErrCodeDecode ErrorCode = iota + 100
	// ErrCodeMalformed means raw NDEF or TLV bytes do not follow the record layout.
	ErrCodeMalformed
	// ErrCodeEmpty means there was nothing to encode or decode.
	ErrCodeEmpty
)

// Error provides structured error information for NDEF decoding failures.
type Error struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "FormatPayload", "ParseMessage")
	Offset  int    // Byte offset of the failure, -1 when not applicable
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same Code, so sentinels like
// ErrDecode work with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrDecode    = &Error{Code: ErrCodeDecode, Offset: -1, Message: "payload is not valid UTF-8"}
	ErrMalformed = &Error{Code: ErrCodeMalformed, Offset: -1, Message: "malformed NDEF data"}
	ErrEmpty     = &Error{Code: ErrCodeEmpty, Offset: -1, Message: "empty NDEF data"}
)

// NewDecodeError creates an error for a payload that is not valid UTF-8.
func NewDecodeError(op string, offset int) *Error {
	return &Error{
		Code:    ErrCodeDecode,
		Op:      op,
		Offset:  offset,
		Message: "payload is not valid UTF-8",
	}
}

// NewMalformedError creates an error for truncated or inconsistent raw NDEF data.
func NewMalformedError(op string, offset int, message string) *Error {
	return &Error{
		Code:    ErrCodeMalformed,
		Op:      op,
		Offset:  offset,
		Message: message,
	}
}

// IsDecodeError reports whether err is a payload decode failure.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}

// IsMalformedError reports whether err is a raw NDEF layout failure.
func IsMalformedError(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// GetErrorCode extracts the ErrorCode from err, or 0 if err is not an *Error.
func GetErrorCode(err error) ErrorCode {
	var ndefErr *Error
	if errors.As(err, &ndefErr) {
		return ndefErr.Code
	}
	return 0
}
