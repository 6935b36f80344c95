// Package ndef models NDEF records and messages as delivered by scanning
// hosts: TNF classification, payload text decoding and the raw wire codec.
package ndef

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Record is a single NDEF record as delivered by a scanning host.
type Record struct {
	TNF     TypeNameFormat // Type Name Format
	Type    []byte         // Record type (e.g., "T" for text, "U" for URI)
	ID      []byte         // Optional record identifier
	Payload []byte         // Record payload
}

// Message is an ordered list of records read from one tag.
type Message struct {
	Records []Record
}

// NewMessage creates a message from records.
func NewMessage(records ...Record) Message {
	return Message{Records: records}
}

// Len returns the number of records in the message.
func (m Message) Len() int {
	return len(m.Records)
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.Records == nil {
		return Message{}
	}
	records := make([]Record, len(m.Records))
	for i, r := range m.Records {
		records[i] = r.Clone()
	}
	return Message{Records: records}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record{
		TNF:     r.TNF,
		Type:    bytes.Clone(r.Type),
		ID:      bytes.Clone(r.ID),
		Payload: bytes.Clone(r.Payload),
	}
}

// Label returns the classifier label for the record's TNF.
func (r Record) Label() string {
	return Classify(r.TNF)
}

// FormatPayload interprets the record payload as UTF-8 text.
// Invalid UTF-8 yields a decode error carrying the offset of the first bad byte.
func FormatPayload(r Record) (string, error) {
	if utf8.Valid(r.Payload) {
		return string(r.Payload), nil
	}
	return "", NewDecodeError("FormatPayload", firstInvalidUTF8(r.Payload))
}

func firstInvalidUTF8(b []byte) int {
	for i := 0; i < len(b); {
		rn, size := utf8.DecodeRune(b[i:])
		if rn == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}

// IsTextRecord returns true for a well-known "T" record.
func (r Record) IsTextRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'T'
}

// IsURIRecord returns true for a well-known "U" record.
func (r Record) IsURIRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'U'
}

// Text extracts the text of a Text Record.
// Returns (text, language, true) for a decodable text record.
func (r Record) Text() (string, string, bool) {
	if !r.IsTextRecord() {
		return "", "", false
	}
	text, lang, err := parseTextRecordPayload(r.Payload)
	if err != nil {
		return "", "", false
	}
	return text, lang, true
}

// URI extracts the expanded URI of a URI Record.
func (r Record) URI() (string, bool) {
	if !r.IsURIRecord() {
		return "", false
	}
	uri, err := parseURIRecordPayload(r.Payload)
	if err != nil {
		return "", false
	}
	return uri, true
}

// parseTextRecordPayload extracts text and language from a Text Record payload.
// Status byte: bit 7 = UTF-16, bits 0-5 = language code length.
func parseTextRecordPayload(payload []byte) (string, string, error) {
	if len(payload) < 1 {
		return "", "", NewMalformedError("Text", 0, "text record payload too short (status byte missing)")
	}
	status := payload[0]
	langLength := int(status & 0x3F)
	isUTF16 := (status & 0x80) != 0

	textDataStart := 1 + langLength
	if textDataStart > len(payload) {
		return "", "", NewMalformedError("Text", 1, "text record payload too short (language code missing)")
	}
	lang := string(payload[1:textDataStart])
	textBytes := payload[textDataStart:]

	if isUTF16 {
		if len(textBytes)%2 != 0 {
			return "", "", NewMalformedError("Text", textDataStart, fmt.Sprintf("invalid UTF-16 text length: %d", len(textBytes)))
		}
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(textBytes)
		if err != nil {
			return "", "", &Error{Code: ErrCodeDecode, Op: "Text", Offset: textDataStart, Message: "invalid UTF-16 text", Cause: err}
		}
		return string(decoded), lang, nil
	}
	if !utf8.Valid(textBytes) {
		return "", "", NewDecodeError("Text", textDataStart+firstInvalidUTF8(textBytes))
	}
	return string(textBytes), lang, nil
}

// MakeTextRecordPayload creates a UTF-8 Text Record payload.
func MakeTextRecordPayload(text string, langCode string) []byte {
	if langCode == "" {
		langCode = "en"
	}
	lang := []byte(langCode)
	if len(lang) > 0x3F {
		lang = lang[:0x3F]
	}
	payload := make([]byte, 1+len(lang)+len(text))
	payload[0] = byte(len(lang))
	copy(payload[1:], lang)
	copy(payload[1+len(lang):], text)
	return payload
}

// uriPrefixes is the URI identifier code table of the NFC Forum URI RTD.
var uriPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

func parseURIRecordPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", NewMalformedError("URI", 0, "URI record payload too short")
	}
	rest := payload[1:]
	if !utf8.Valid(rest) {
		return "", NewDecodeError("URI", 1+firstInvalidUTF8(rest))
	}
	var prefix string
	if code := int(payload[0]); code < len(uriPrefixes) {
		prefix = uriPrefixes[code]
	}
	return prefix + string(rest), nil
}

// MakeURIRecordPayload creates a URI Record payload, abbreviating the
// longest matching prefix from the identifier code table.
func MakeURIRecordPayload(uri string) []byte {
	code := 0
	for i := 1; i < len(uriPrefixes); i++ {
		p := uriPrefixes[i]
		if len(p) > len(uriPrefixes[code]) && len(uri) >= len(p) && uri[:len(p)] == p {
			code = i
		}
	}
	rest := uri[len(uriPrefixes[code]):]
	payload := make([]byte, 1+len(rest))
	payload[0] = byte(code)
	copy(payload[1:], rest)
	return payload
}

// NewTextRecord builds a well-known Text Record.
func NewTextRecord(text, langCode string) Record {
	return Record{
		TNF:     TNFWellKnown,
		Type:    []byte("T"),
		Payload: MakeTextRecordPayload(text, langCode),
	}
}

// NewURIRecord builds a well-known URI Record.
func NewURIRecord(uri string) Record {
	return Record{
		TNF:     TNFWellKnown,
		Type:    []byte("U"),
		Payload: MakeURIRecordPayload(uri),
	}
}

// NewMediaRecord builds a MIME media record.
func NewMediaRecord(mimeType string, data []byte) Record {
	return Record{
		TNF:     TNFMedia,
		Type:    []byte(mimeType),
		Payload: data,
	}
}
