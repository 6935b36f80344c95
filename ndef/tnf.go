package ndef

// TypeNameFormat is the 3-bit TNF field of an NDEF record header.
// Values outside 0x00-0x07 can still reach the classifier when a host
// reports malformed or future tag data.
type TypeNameFormat uint8

const (
	TNFEmpty       TypeNameFormat = 0x00
	TNFWellKnown   TypeNameFormat = 0x01
	TNFMedia       TypeNameFormat = 0x02
	TNFAbsoluteURI TypeNameFormat = 0x03
	TNFExternal    TypeNameFormat = 0x04
	TNFUnknown     TypeNameFormat = 0x05
	TNFUnchanged   TypeNameFormat = 0x06
	TNFReserved    TypeNameFormat = 0x07
)

// Display labels returned by Classify.
const (
	LabelEmpty       = "Empty"
	LabelWellKnown   = "NFC Well Known"
	LabelMedia       = "Media"
	LabelAbsoluteURI = "Absolute URI"
	LabelExternal    = "NFC External"
	LabelUnchanged   = "Unchanged"
	LabelUnknown     = "Unknown"
)

// Classify maps a TNF code to its display label. It never fails: the
// unknown and reserved codes, and anything else, map to LabelUnknown.
func Classify(tnf TypeNameFormat) string {
	switch tnf {
	case TNFEmpty:
		return LabelEmpty
	case TNFWellKnown:
		return LabelWellKnown
	case TNFMedia:
		return LabelMedia
	case TNFAbsoluteURI:
		return LabelAbsoluteURI
	case TNFExternal:
		return LabelExternal
	case TNFUnchanged:
		return LabelUnchanged
	default:
		return LabelUnknown
	}
}

// ClassifyCode is Classify for untyped integers, e.g. values decoded from JSON.
func ClassifyCode(code int) string {
	if code < 0 || code > 0xFF {
		return LabelUnknown
	}
	return Classify(TypeNameFormat(code))
}

// String returns the display label.
func (t TypeNameFormat) String() string {
	return Classify(t)
}

// Valid reports whether t fits in the 3-bit header field.
func (t TypeNameFormat) Valid() bool {
	return t <= TNFReserved
}
