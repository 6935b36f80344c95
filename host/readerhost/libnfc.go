package readerhost

import (
	"fmt"

	"github.com/clausecker/freefare"
	"github.com/clausecker/nfc/v2"

	"github.com/dotside-studios/davi-ndef-viewer/ndef"
)

// Type 2 tag memory layout
const (
	firstDataPage = 4   // pages 0-3 hold the UID, lock bytes and capability container
	maxPages      = 256 // upper bound for NTAG216 and friends
)

// libnfcDevice implements Device on a libnfc reader.
type libnfcDevice struct {
	device nfc.Device
}

// OpenLibNFC opens a libnfc reader and puts it in initiator mode.
func OpenLibNFC(connection string) (Device, error) {
	dev, err := nfc.Open(connection)
	if err != nil {
		return nil, err
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("initiator init: %w", err)
	}
	return &libnfcDevice{device: dev}, nil
}

func (d *libnfcDevice) Close() error   { return d.device.Close() }
func (d *libnfcDevice) String() string { return d.device.String() }

// Tags returns the Ultralight-family tags (including NTAG) in the field.
// Other tag families are skipped.
func (d *libnfcDevice) Tags() ([]Tag, error) {
	ffTags, err := freefare.GetTags(d.device)
	if err != nil {
		return nil, fmt.Errorf("freefare.GetTags: %w", err)
	}

	var tags []Tag
	for _, ffTag := range ffTags {
		switch t := ffTag.(type) {
		case freefare.UltralightTag:
			tags = append(tags, &ultralightTag{tag: t})
		default:
			log.WithField("uid", ffTag.UID()).Debugf("Skipping unsupported tag %T", t)
		}
	}
	return tags, nil
}

// ultralightTag reads a MIFARE Ultralight or NTAG tag page by page.
type ultralightTag struct {
	tag freefare.UltralightTag
}

func (u *ultralightTag) UID() string { return u.tag.UID() }

func (u *ultralightTag) Type() string {
	switch u.tag.Type() {
	case freefare.Ultralight:
		return "MIFARE Ultralight"
	case freefare.UltralightC:
		return "MIFARE Ultralight C"
	default:
		return fmt.Sprintf("MIFARE Ultralight (type %d)", u.tag.Type())
	}
}

// ReadNDEF reads pages from the first data page until the NDEF TLV is
// complete, a terminator is seen or the tag runs out of pages.
func (u *ultralightTag) ReadNDEF() ([]byte, error) {
	if err := u.tag.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer u.tag.Disconnect()

	last := maxPages
	if u.tag.Type() == freefare.UltralightC {
		last = 48
	}

	var data []byte
	for page := firstDataPage; page < last; page++ {
		pageData, err := u.tag.ReadPage(byte(page))
		if err != nil {
			if len(data) == 0 {
				return nil, fmt.Errorf("read page %d: %w", page, err)
			}
			// Past the end of user memory.
			break
		}
		data = append(data, pageData[:]...)

		if size := ndef.NDEFTLVSize(data); size > 0 && len(data) >= size {
			break
		}
		if len(data) > 0 && data[0] == ndef.TLVTerminator {
			break
		}
	}
	return data, nil
}
