package protocol

import "github.com/dotside-studios/davi-ndef-viewer/view"

// BatchSummaryPayload is the section header of one batch.
type BatchSummaryPayload struct {
	Index        int    `json:"index"`
	ID           string `json:"id"`
	Source       string `json:"source"`
	ScannedAt    string `json:"scannedAt"` // RFC3339
	MessageCount int    `json:"messageCount"`
	Label        string `json:"label"` // "One Message" / "N Messages"
}

// MessageRowPayload is one row of a batch listing.
type MessageRowPayload struct {
	Index       int    `json:"index"`
	Title       string `json:"title"` // e.g. "2 Records"
	RecordCount int    `json:"recordCount"`
}

// BatchDetailPayload is a batch with its message rows.
type BatchDetailPayload struct {
	BatchSummaryPayload
	Messages []MessageRowPayload `json:"messages"`
}

// MessageDetailPayload is the detail view of one message.
type MessageDetailPayload struct {
	BatchIndex   int               `json:"batchIndex"`
	MessageIndex int               `json:"messageIndex"`
	Title        string            `json:"title"` // e.g. " 2 Records found in Message"
	Body         string            `json:"body"`  // Payload lines joined by "\n"
	Records      []view.RecordView `json:"records"`
}

// LogChangedPayload is broadcast whenever the scan log grows or is cleared.
type LogChangedPayload struct {
	Reason     string               `json:"reason"` // "appended", "cleared" or "snapshot" on connect
	BatchCount int                  `json:"batchCount"`
	Latest     *BatchSummaryPayload `json:"latest,omitempty"`
}

// SessionPayload describes the scanner state.
type SessionPayload struct {
	State string `json:"state"` // "idle" or "scanning"
	Host  string `json:"host"`
}

// SessionInvalidatedPayload is broadcast when the reader session ends.
type SessionInvalidatedPayload struct {
	Reason  string `json:"reason"`
	Host    string `json:"host"`
	Message string `json:"message"`
}
