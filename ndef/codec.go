package ndef

import (
	"encoding/binary"
	"fmt"
)

// Record header flags.
const (
	flagMB  = 0x80 // Message Begin
	flagME  = 0x40 // Message End
	flagCF  = 0x20 // Chunk Flag
	flagSR  = 0x10 // Short Record
	flagIL  = 0x08 // ID Length present
	maskTNF = 0x07
)

// ParseMessage decodes raw NDEF message bytes into a Message.
// Chunked records are reassembled into a single record.
func ParseMessage(data []byte) (Message, error) {
	const op = "ParseMessage"
	if len(data) == 0 {
		return Message{}, &Error{Code: ErrCodeEmpty, Op: op, Offset: 0, Message: "empty NDEF message"}
	}

	var records []Record
	var chunk *Record
	offset := 0

	for offset < len(data) {
		header := data[offset]
		me := header&flagME != 0
		cf := header&flagCF != 0
		sr := header&flagSR != 0
		il := header&flagIL != 0
		tnf := TypeNameFormat(header & maskTNF)

		pos := offset + 1
		if pos+1 > len(data) {
			return Message{}, NewMalformedError(op, pos, "truncated type length")
		}
		typeLength := int(data[pos])
		pos++

		var payloadLength int
		if sr {
			if pos+1 > len(data) {
				return Message{}, NewMalformedError(op, pos, "truncated short record payload length")
			}
			payloadLength = int(data[pos])
			pos++
		} else {
			if pos+4 > len(data) {
				return Message{}, NewMalformedError(op, pos, "truncated payload length")
			}
			payloadLength = int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
		}

		var idLength int
		if il {
			if pos+1 > len(data) {
				return Message{}, NewMalformedError(op, pos, "truncated ID length")
			}
			idLength = int(data[pos])
			pos++
		}

		if typeLength > len(data)-pos {
			return Message{}, NewMalformedError(op, pos, "truncated type field")
		}
		recordType := data[pos : pos+typeLength]
		pos += typeLength

		if idLength > len(data)-pos {
			return Message{}, NewMalformedError(op, pos, "truncated ID field")
		}
		recordID := data[pos : pos+idLength]
		pos += idLength

		if payloadLength < 0 || payloadLength > len(data)-pos {
			return Message{}, NewMalformedError(op, pos, fmt.Sprintf("truncated payload (want %d bytes)", payloadLength))
		}
		payload := data[pos : pos+payloadLength]
		pos += payloadLength

		switch {
		case chunk == nil && cf:
			// First chunk carries type and ID; following chunks are TNF unchanged.
			chunk = &Record{TNF: tnf, Type: clone(recordType), ID: clone(recordID), Payload: clone(payload)}
		case chunk != nil:
			if tnf != TNFUnchanged {
				return Message{}, NewMalformedError(op, offset, "chunk continuation must use TNF unchanged")
			}
			chunk.Payload = append(chunk.Payload, payload...)
			if !cf {
				records = append(records, *chunk)
				chunk = nil
			}
		default:
			records = append(records, Record{TNF: tnf, Type: clone(recordType), ID: clone(recordID), Payload: clone(payload)})
		}

		offset = pos
		if me {
			break
		}
	}

	if chunk != nil {
		return Message{}, NewMalformedError(op, offset, "message ended inside a chunked record")
	}
	return Message{Records: records}, nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Encode serializes the message into raw NDEF bytes, using short records
// where the payload fits in one length byte.
func (m Message) Encode() ([]byte, error) {
	const op = "Encode"
	if len(m.Records) == 0 {
		return nil, &Error{Code: ErrCodeEmpty, Op: op, Offset: -1, Message: "cannot encode empty record list"}
	}

	var result []byte
	for i, record := range m.Records {
		if !record.TNF.Valid() {
			return nil, NewMalformedError(op, -1, fmt.Sprintf("record %d: TNF 0x%02X does not fit the header", i, uint8(record.TNF)))
		}
		if len(record.Type) > 0xFF || len(record.ID) > 0xFF {
			return nil, NewMalformedError(op, -1, fmt.Sprintf("record %d: type or ID longer than 255 bytes", i))
		}

		payloadLen := len(record.Payload)
		isShort := payloadLen <= 0xFF
		hasID := len(record.ID) > 0

		header := byte(record.TNF) & maskTNF
		if i == 0 {
			header |= flagMB
		}
		if i == len(m.Records)-1 {
			header |= flagME
		}
		if isShort {
			header |= flagSR
		}
		if hasID {
			header |= flagIL
		}

		result = append(result, header, byte(len(record.Type)))
		if isShort {
			result = append(result, byte(payloadLen))
		} else {
			result = binary.BigEndian.AppendUint32(result, uint32(payloadLen))
		}
		if hasID {
			result = append(result, byte(len(record.ID)))
		}
		result = append(result, record.Type...)
		result = append(result, record.ID...)
		result = append(result, record.Payload...)
	}
	return result, nil
}
