// Package view turns scan log entries into the strings and JSON shapes the
// displays render: section headers, message rows and record alerts.
package view

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/dotside-studios/davi-ndef-viewer/ndef"
	"github.com/dotside-studios/davi-ndef-viewer/scanlog"
)

// previewBytes caps how many payload bytes the unreadable placeholder shows.
const previewBytes = 16

// RecordView is the JSON-friendly description of one record.
type RecordView struct {
	Label       string `json:"label"`                 // Classifier label, e.g. "NFC Well Known"
	TNF         uint8  `json:"tnf"`                   // Raw Type Name Format
	Type        string `json:"type"`                  // Record type
	ID          string `json:"id,omitempty"`          // Record identifier
	Payload     string `json:"payload"`               // Decoded payload or placeholder
	PayloadHex  string `json:"payloadHex"`            // Raw payload bytes
	Readable    bool   `json:"readable"`              // Payload decoded as UTF-8
	DecodeError string `json:"decodeError,omitempty"` // Why the payload is unreadable
	Kind        string `json:"kind,omitempty"`        // "text" or "uri" when interpreted
	Content     string `json:"content,omitempty"`     // Interpreted text or URI
	Language    string `json:"language,omitempty"`    // Language of a text record
}

// SectionHeader is the header shown above a batch.
func SectionHeader(b scanlog.Batch) string {
	return scanlog.Summarize(b).Label
}

// RowTitle is the row title of a message. It always uses the plural form.
func RowTitle(m ndef.Message) string {
	return fmt.Sprintf("%d Records", m.Len())
}

// AlertTitle is the title of the message detail alert.
func AlertTitle(m ndef.Message) string {
	return fmt.Sprintf(" %d Records found in Message", m.Len())
}

// PayloadText returns the payload decoded as UTF-8, or a placeholder naming
// the payload size and its leading bytes when it is not valid UTF-8.
func PayloadText(r ndef.Record) string {
	text, err := ndef.FormatPayload(r)
	if err != nil {
		return unreadable(r.Payload)
	}
	return text
}

func unreadable(payload []byte) string {
	preview := payload
	if len(preview) > previewBytes {
		preview = preview[:previewBytes]
	}
	parts := make([]string, len(preview))
	for i, b := range preview {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	more := ""
	if len(payload) > previewBytes {
		more = " ..."
	}
	return fmt.Sprintf("<unreadable payload, %d bytes: %s%s>", len(payload), strings.Join(parts, " "), more)
}

// AlertBody lists the payload of every record, one per line.
func AlertBody(m ndef.Message) string {
	lines := make([]string, 0, m.Len())
	for _, r := range m.Records {
		lines = append(lines, PayloadText(r))
	}
	return strings.Join(lines, "\n")
}

// DescribeRecord builds the full record description used by the JSON APIs.
func DescribeRecord(r ndef.Record) RecordView {
	v := RecordView{
		Label:      r.Label(),
		TNF:        uint8(r.TNF),
		Type:       printable(r.Type),
		ID:         printable(r.ID),
		PayloadHex: hex.EncodeToString(r.Payload),
	}

	text, err := ndef.FormatPayload(r)
	if err != nil {
		v.Payload = unreadable(r.Payload)
		v.DecodeError = err.Error()
	} else {
		v.Payload = text
		v.Readable = true
	}

	if t, lang, ok := r.Text(); ok {
		v.Kind, v.Content, v.Language = "text", t, lang
	} else if uri, ok := r.URI(); ok {
		v.Kind, v.Content = "uri", uri
	}
	return v
}

// DescribeMessage describes every record of m in order.
func DescribeMessage(m ndef.Message) []RecordView {
	out := make([]RecordView, 0, m.Len())
	for _, r := range m.Records {
		out = append(out, DescribeRecord(r))
	}
	return out
}

// LogFields are the fields logged for each detected record.
func LogFields(r ndef.Record) logrus.Fields {
	return logrus.Fields{
		"tnf":        r.Label(),
		"type":       printable(r.Type),
		"identifier": printable(r.ID),
		"payload":    PayloadText(r),
	}
}

// printable returns b as text, or as hex when it is not valid UTF-8.
func printable(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return hex.EncodeToString(b)
}
