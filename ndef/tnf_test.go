package ndef

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		tnf  TypeNameFormat
		want string
	}{
		{TNFEmpty, "Empty"},
		{TNFWellKnown, "NFC Well Known"},
		{TNFMedia, "Media"},
		{TNFAbsoluteURI, "Absolute URI"},
		{TNFExternal, "NFC External"},
		{TNFUnknown, "Unknown"},
		{TNFUnchanged, "Unchanged"},
		{TNFReserved, "Unknown"},
		{0x08, "Unknown"},
		{0xFF, "Unknown"},
	}

	for _, tt := range tests {
		if got := Classify(tt.tnf); got != tt.want {
			t.Errorf("Classify(0x%02X) = %q, want %q", uint8(tt.tnf), got, tt.want)
		}
		if got := tt.tnf.String(); got != tt.want {
			t.Errorf("TypeNameFormat(0x%02X).String() = %q, want %q", uint8(tt.tnf), got, tt.want)
		}
	}
}

// Every value outside the closed set must fall back to Unknown.
func TestClassifyTotal(t *testing.T) {
	known := map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 6: true}
	for code := -300; code <= 600; code++ {
		got := ClassifyCode(code)
		if known[code] {
			if got == LabelUnknown {
				t.Errorf("ClassifyCode(%d) should have a specific label", code)
			}
			continue
		}
		if got != LabelUnknown {
			t.Errorf("ClassifyCode(%d) = %q, want %q", code, got, LabelUnknown)
		}
	}
}

func TestTypeNameFormatValid(t *testing.T) {
	if !TNFReserved.Valid() {
		t.Error("TNF 0x07 should fit the header")
	}
	if TypeNameFormat(0x08).Valid() {
		t.Error("TNF 0x08 should not fit the header")
	}
}
