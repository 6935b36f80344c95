package ndef

// TLV block types found in Type 2 tag memory.
const (
	TLVNull        = 0x00
	TLVLockCtrl    = 0x01
	TLVMemCtrl     = 0x02
	TLVNDEF        = 0x03
	TLVProprietary = 0xFD
	TLVTerminator  = 0xFE
)

// EncodeTLV wraps data into a TLV followed by a Terminator TLV.
// Lengths of 0xFF and above use the 3-byte length format.
func EncodeTLV(data []byte, tlvType byte) []byte {
	length := len(data)
	result := []byte{tlvType}
	if length < 0xFF {
		result = append(result, byte(length))
	} else {
		result = append(result, 0xFF, byte(length>>8), byte(length&0xFF))
	}
	result = append(result, data...)
	return append(result, TLVTerminator)
}

// tlvHeader returns the value length and the offset of the value relative
// to data[0] (the type byte). ok is false for a truncated header.
func tlvHeader(data []byte) (length, valueStart int, ok bool) {
	if len(data) < 2 {
		return 0, 0, false
	}
	if data[1] == 0xFF {
		if len(data) < 4 {
			return 0, 0, false
		}
		return int(data[2])<<8 | int(data[3]), 4, true
	}
	return int(data[1]), 2, true
}

// FindNDEFTLV locates the NDEF Message TLV in a TLV area and returns its value.
// Null TLVs are skipped; other TLVs are stepped over by their length.
func FindNDEFTLV(data []byte) ([]byte, error) {
	const op = "FindNDEFTLV"
	offset := 0
	for offset < len(data) {
		switch data[offset] {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, &Error{Code: ErrCodeEmpty, Op: op, Offset: offset, Message: "no NDEF TLV before terminator"}
		}

		length, valueStart, ok := tlvHeader(data[offset:])
		if !ok {
			return nil, NewMalformedError(op, offset, "truncated TLV header")
		}
		start := offset + valueStart
		if length > len(data)-start {
			return nil, NewMalformedError(op, offset, "TLV length exceeds available data")
		}
		if data[offset] == TLVNDEF {
			return data[start : start+length], nil
		}
		offset = start + length
	}
	return nil, &Error{Code: ErrCodeEmpty, Op: op, Offset: offset, Message: "no NDEF TLV found"}
}

// NDEFTLVSize returns how many bytes of tag memory must be read, counted
// from the start of data, to hold the complete NDEF TLV whose header begins
// in data. It returns 0 when the header is not yet visible.
func NDEFTLVSize(data []byte) int {
	offset := 0
	for offset < len(data) {
		switch data[offset] {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return 0
		}
		length, valueStart, ok := tlvHeader(data[offset:])
		if !ok {
			return 0
		}
		if data[offset] == TLVNDEF {
			return offset + valueStart + length
		}
		offset += valueStart + length
	}
	return 0
}
