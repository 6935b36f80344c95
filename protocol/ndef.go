package protocol

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dotside-studios/davi-ndef-viewer/ndef"
)

// MessageInput represents an NDEF message for input.
// Either Records or Raw must be set; Raw wins when both are present.
type MessageInput struct {
	Records []RecordInput `json:"records,omitempty"`
	Raw     string        `json:"raw,omitempty"` // Raw NDEF bytes, hex or base64
}

// RecordInput represents a single NDEF record for input.
// Supports both high-level (type+content) and low-level (TNF+payload) formats.
type RecordInput struct {
	// High-level format
	RecordType string `json:"recordType,omitempty"` // "text", "uri", "mime", "external", "empty"
	Content    string `json:"content,omitempty"`    // Text content or URI
	Language   string `json:"language,omitempty"`   // Language code for text (default: "en")
	MimeType   string `json:"mimeType,omitempty"`   // MIME type or external type name

	// Low-level format, as reported by the platform reader
	TNF     *int   `json:"tnf,omitempty"`     // Type Name Format; values above 0x07 are kept and classified "Unknown"
	Type    []byte `json:"type,omitempty"`    // base64 in JSON
	ID      []byte `json:"id,omitempty"`      // base64 in JSON
	Payload []byte `json:"payload,omitempty"` // base64 in JSON
}

// ToMessage converts the input into an ndef.Message.
func (m MessageInput) ToMessage() (ndef.Message, error) {
	if m.Raw != "" {
		data, err := DecodeBytes(m.Raw)
		if err != nil {
			return ndef.Message{}, fmt.Errorf("raw message: %w", err)
		}
		return ndef.ParseMessage(data)
	}

	records := make([]ndef.Record, 0, len(m.Records))
	for i, in := range m.Records {
		record, err := in.ToRecord()
		if err != nil {
			return ndef.Message{}, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, record)
	}
	return ndef.NewMessage(records...), nil
}

// ToRecord converts the input into an ndef.Record.
func (r RecordInput) ToRecord() (ndef.Record, error) {
	if r.TNF != nil {
		if *r.TNF < 0 || *r.TNF > 0xFF {
			return ndef.Record{}, fmt.Errorf("invalid TNF value: %d", *r.TNF)
		}
		return ndef.Record{
			TNF:     ndef.TypeNameFormat(*r.TNF),
			Type:    r.Type,
			ID:      r.ID,
			Payload: r.Payload,
		}, nil
	}

	var record ndef.Record
	switch strings.ToLower(r.RecordType) {
	case "text", "":
		record = ndef.NewTextRecord(r.Content, r.Language)
	case "uri":
		record = ndef.NewURIRecord(r.Content)
	case "mime":
		if r.MimeType == "" {
			return ndef.Record{}, fmt.Errorf("mime record requires mimeType")
		}
		record = ndef.NewMediaRecord(r.MimeType, payloadOrContent(r))
	case "external":
		if r.MimeType == "" {
			return ndef.Record{}, fmt.Errorf("external record requires mimeType (domain:type)")
		}
		record = ndef.Record{TNF: ndef.TNFExternal, Type: []byte(r.MimeType), Payload: payloadOrContent(r)}
	case "empty":
		record = ndef.Record{TNF: ndef.TNFEmpty}
	default:
		return ndef.Record{}, fmt.Errorf("unsupported record type '%s'", r.RecordType)
	}
	record.ID = r.ID
	return record, nil
}

func payloadOrContent(r RecordInput) []byte {
	if r.Payload != nil {
		return r.Payload
	}
	return []byte(r.Content)
}

// DecodeBytes decodes hex (separators ':', ' ', '-' allowed) or standard base64.
func DecodeBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty input")
	}

	cleaned := strings.NewReplacer(":", "", " ", "", "-", "", "\n", "").Replace(s)
	if b, err := hex.DecodeString(cleaned); err == nil {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("input is neither hex nor base64")
}
