// Package readerhost runs reader sessions on a local libnfc reader. It polls
// for NFC Forum Type 2 tags, reads their NDEF TLV and reports one message
// per tag that enters the field.
package readerhost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dotside-studios/davi-ndef-viewer/internal/logging"
	"github.com/dotside-studios/davi-ndef-viewer/ndef"
	"github.com/dotside-studios/davi-ndef-viewer/session"
)

// Polling and session limits
const (
	DefaultPollingInterval = 100 * time.Millisecond
	DefaultSessionTimeout  = 60 * time.Second
	MaxConsecutiveErrors   = 3
)

var log = logging.For("readerhost")

// Device is an opened NFC reader.
type Device interface {
	// Tags polls the field and returns the tags currently present.
	Tags() ([]Tag, error)
	Close() error
	String() string
}

// Tag is a tag whose NDEF area can be read.
type Tag interface {
	UID() string
	Type() string
	// ReadNDEF returns the tag's TLV area, starting at the first data page.
	ReadNDEF() ([]byte, error)
}

// OpenFunc opens a reader by libnfc connection string; "" opens the first one.
type OpenFunc func(connection string) (Device, error)

// Config controls the reader host.
type Config struct {
	Connection               string
	PollingInterval          time.Duration
	Timeout                  time.Duration
	InvalidateAfterFirstRead bool
	// Open defaults to OpenLibNFC.
	Open OpenFunc
}

// Host implements session.Host on a local reader.
type Host struct {
	cfg Config

	mu      sync.Mutex
	current *run
}

type run struct {
	handler session.EventHandler
	device  Device
	cancel  context.CancelFunc
}

// New creates a reader host.
func New(cfg Config) *Host {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = DefaultPollingInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSessionTimeout
	}
	if cfg.Open == nil {
		cfg.Open = OpenLibNFC
	}
	return &Host{cfg: cfg}
}

func (h *Host) Name() string { return "reader" }

// Begin opens the reader and starts polling.
func (h *Host) Begin(ctx context.Context, eh session.EventHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		return session.ErrAlreadyActive
	}

	device, err := h.cfg.Open(h.cfg.Connection)
	if err != nil {
		return fmt.Errorf("open reader %q: %w", h.cfg.Connection, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	r := &run{handler: eh, device: device, cancel: cancel}
	h.current = r
	go h.poll(ctx, r)

	log.WithField("device", device.String()).Info("Reader session started")
	return nil
}

// Invalidate ends the session as if the user canceled it.
func (h *Host) Invalidate() error {
	h.mu.Lock()
	r := h.current
	h.mu.Unlock()
	if r == nil {
		return session.ErrNotActive
	}
	h.end(r, session.ErrUserCanceled)
	return nil
}

func (h *Host) poll(ctx context.Context, r *run) {
	ticker := time.NewTicker(h.cfg.PollingInterval)
	defer ticker.Stop()

	present := make(map[string]bool) // UIDs in the field as of the last poll
	failures := 0

	for {
		select {
		case <-ctx.Done():
			err := ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				err = session.ErrTimeout
			}
			h.end(r, err)
			return
		case <-ticker.C:
		}

		tags, err := r.device.Tags()
		if err != nil {
			failures++
			log.WithError(err).WithField("failures", failures).Debug("Polling failed")
			if failures >= MaxConsecutiveErrors {
				h.end(r, &session.SessionError{Reason: session.ReasonReadError, Cause: err})
				return
			}
			continue
		}
		failures = 0

		seen := make(map[string]bool, len(tags))
		for _, tag := range tags {
			uid := tag.UID()
			seen[uid] = true
			if present[uid] {
				continue
			}

			msg, err := ReadMessage(tag)
			if err != nil {
				log.WithError(err).WithField("uid", uid).Warn("Tag has no readable NDEF message")
				// Retry on the next poll while it stays in the field.
				delete(seen, uid)
				continue
			}
			r.handler.OnTagsDetected([]ndef.Message{msg})

			if h.cfg.InvalidateAfterFirstRead {
				h.end(r, session.ErrFirstRead)
				return
			}
		}
		present = seen
	}
}

// ReadMessage reads and parses the NDEF message stored on tag.
func ReadMessage(tag Tag) (ndef.Message, error) {
	data, err := tag.ReadNDEF()
	if err != nil {
		return ndef.Message{}, fmt.Errorf("read %s: %w", tag.Type(), err)
	}
	value, err := ndef.FindNDEFTLV(data)
	if err != nil {
		return ndef.Message{}, err
	}
	return ndef.ParseMessage(value)
}

// end reports the end of r once and releases the reader.
func (h *Host) end(r *run, err error) {
	h.mu.Lock()
	if h.current != r {
		h.mu.Unlock()
		return
	}
	h.current = nil
	h.mu.Unlock()

	r.cancel()
	if closeErr := r.device.Close(); closeErr != nil {
		log.WithError(closeErr).Debug("Closing reader failed")
	}
	r.handler.OnSessionInvalidated(err)
}
