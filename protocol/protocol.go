// Package protocol provides the JSON message types shared by the viewer, its
// display clients and scanning devices. It does not import the server.
package protocol

import "time"

// BatchInputRequest is the request body for POST /api/v1/batches.
// External tools use it to inject a detection event into the scan log.
type BatchInputRequest struct {
	// Messages is the batch; each message is either structured records or raw NDEF bytes.
	Messages []MessageInput `json:"messages"`

	// ScannedAt defaults to the current server time.
	ScannedAt *time.Time `json:"scannedAt,omitempty"`

	// Source defaults to "http-api".
	Source string `json:"source,omitempty"`
}

// BatchInputResponse is the response body for POST /api/v1/batches.
type BatchInputResponse struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	MessageCount int    `json:"messageCount,omitempty"`
}

// ErrorResponse is returned by REST endpoints on failure.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// Error codes used in responses
const (
	ErrCodeInvalidNDEF       = "INVALID_NDEF"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeIndexOutOfRange   = "INDEX_OUT_OF_RANGE"
	ErrCodeSessionError      = "SESSION_ERROR"
	ErrCodeUnknownType       = "UNKNOWN_TYPE"
	ErrCodeParseError        = "PARSE_ERROR"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeRegistrationError = "REGISTRATION_FAILED"
)
