// Package demohost provides a scripted reader host. It replays configured
// detection events and is used for demos and tests.
package demohost

import (
	"context"
	"sync"
	"time"

	"github.com/dotside-studios/davi-ndef-viewer/internal/logging"
	"github.com/dotside-studios/davi-ndef-viewer/ndef"
	"github.com/dotside-studios/davi-ndef-viewer/session"
)

// DefaultInterval is the pause before each scripted detection.
const DefaultInterval = 2 * time.Second

var log = logging.For("demohost")

// Config controls the script.
type Config struct {
	// Batches are delivered in order, one detection event each.
	Batches [][]ndef.Message
	// Interval is the pause before each batch. Zero uses DefaultInterval.
	Interval time.Duration
	// EndWith, when set, invalidates the session with this error after the
	// last batch. Otherwise the session stays open until Invalidate.
	EndWith error
	// Loop replays the script until the session ends.
	Loop bool
}

// Host replays a script of detection events.
type Host struct {
	cfg Config

	mu      sync.Mutex
	current *run
}

type run struct {
	handler session.EventHandler
	cancel  context.CancelFunc
}

// New creates a demo host.
func New(cfg Config) *Host {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Host{cfg: cfg}
}

func (h *Host) Name() string { return "demo" }

// Begin starts replaying the script.
func (h *Host) Begin(ctx context.Context, eh session.EventHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		return session.ErrAlreadyActive
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &run{handler: eh, cancel: cancel}
	h.current = r
	go h.play(ctx, r)

	log.WithField("batches", len(h.cfg.Batches)).Debug("Demo session started")
	return nil
}

func (h *Host) play(ctx context.Context, r *run) {
	for {
		for _, batch := range h.cfg.Batches {
			select {
			case <-ctx.Done():
				h.end(r, ctx.Err())
				return
			case <-time.After(h.cfg.Interval):
			}
			r.handler.OnTagsDetected(batch)
		}
		if !h.cfg.Loop || len(h.cfg.Batches) == 0 {
			break
		}
	}

	if h.cfg.EndWith != nil {
		h.end(r, h.cfg.EndWith)
		return
	}
	<-ctx.Done()
	h.end(r, ctx.Err())
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

// end reports the end of r once; later calls for the same run are ignored.
func (h *Host) end(r *run, err error) {
	h.mu.Lock()
	if h.current != r {
		h.mu.Unlock()
		return
	}
	h.current = nil
	h.mu.Unlock()

	r.cancel()
	r.handler.OnSessionInvalidated(err)
}

// DefaultScript is a set of detections covering every record kind the
// viewer renders, including an unreadable payload and an unknown TNF.
func DefaultScript() [][]ndef.Message {
	return [][]ndef.Message{
		{
			ndef.NewMessage(ndef.NewTextRecord("Hello from the demo reader", "en")),
		},
		{
			ndef.NewMessage(
				ndef.NewURIRecord("https://example.com/ndef"),
				ndef.NewTextRecord("Example link", "en"),
			),
			ndef.NewMessage(ndef.NewMediaRecord("application/json", []byte(`{"demo":true}`))),
		},
		{
			ndef.NewMessage(
				ndef.Record{TNF: ndef.TNFExternal, Type: []byte("example.com:badge"), ID: []byte("badge-1"), Payload: []byte("visitor")},
				ndef.Record{TNF: ndef.TNFMedia, Type: []byte("application/octet-stream"), Payload: []byte{0xFF, 0xFE, 0x00, 0x42}},
				ndef.Record{TNF: ndef.TNFReserved, Payload: []byte("reserved")},
			),
		},
	}
}
