// Package session connects a reader host to the scan log. The Scanner
// receives detection events from the host, records them and tells the
// displays to refresh from a single dispatcher goroutine.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dotside-studios/davi-ndef-viewer/internal/logging"
	"github.com/dotside-studios/davi-ndef-viewer/ndef"
	"github.com/dotside-studios/davi-ndef-viewer/scanlog"
	"github.com/dotside-studios/davi-ndef-viewer/view"
)

// EventHandler receives events from a reader session. Hosts may call it from
// any goroutine.
type EventHandler interface {
	// OnTagsDetected delivers one detection event: one or more messages.
	OnTagsDetected(messages []ndef.Message)
	// OnSessionInvalidated reports that the session ended and why.
	OnSessionInvalidated(err error)
}

// Host is a source of reader sessions: the phone reader, a local libnfc
// reader or a scripted demo.
type Host interface {
	Name() string
	// Begin starts a session that reports to h until it is invalidated.
	// It must not block for the lifetime of the session.
	Begin(ctx context.Context, h EventHandler) error
	// Invalidate ends the active session. The host reports the end through
	// OnSessionInvalidated.
	Invalidate() error
}

// State is the scanner lifecycle state.
type State int

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	if s == StateScanning {
		return "scanning"
	}
	return "idle"
}

// Refresh tells a display that the log changed.
type Refresh struct {
	BatchIndex int
	BatchCount int
	Source     string
}

// Notifier is a display that is told when to re-render.
// Methods are called from the dispatcher goroutine, one at a time.
type Notifier interface {
	Refresh(r Refresh)
	SessionEnded(err *SessionError)
}

// SourceHTTP is the batch source for detections injected over the REST API.
const SourceHTTP = "http-api"

// DefaultQueueSize bounds the display queue.
const DefaultQueueSize = 32

type event struct {
	refresh *Refresh
	ended   *SessionError
}

// Scanner implements EventHandler on top of a scanlog.Store.
type Scanner struct {
	host  Host
	store *scanlog.Store
	log   *logrus.Entry

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	notifiers []Notifier

	queue chan event
	done  chan struct{}
}

// NewScanner creates a scanner for host writing to store.
func NewScanner(host Host, store *scanlog.Store) *Scanner {
	return &Scanner{
		host:  host,
		store: store,
		log:   logging.For("scanner").WithField("host", host.Name()),
		queue: make(chan event, DefaultQueueSize),
		done:  make(chan struct{}),
	}
}

// Store returns the scan log.
func (s *Scanner) Store() *scanlog.Store {
	return s.store
}

// HostName returns the name of the reader host.
func (s *Scanner) HostName() string {
	return s.host.Name()
}

// AddNotifier registers a display.
func (s *Scanner) AddNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Run delivers display notifications in order until ctx is done.
// It ends the active session on return.
func (s *Scanner) Run(ctx context.Context) error {
	defer close(s.done)
	defer func() {
		if s.State() == StateScanning {
			if err := s.host.Invalidate(); err != nil {
				s.log.WithError(err).Debug("Invalidate on shutdown failed")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.queue:
			s.dispatch(ev)
		}
	}
}

func (s *Scanner) dispatch(ev event) {
	s.mu.Lock()
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.mu.Unlock()

	for _, n := range notifiers {
		switch {
		case ev.refresh != nil:
			n.Refresh(*ev.refresh)
		case ev.ended != nil:
			n.SessionEnded(ev.ended)
		}
	}
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins a reader session on the host.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateScanning {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	s.state = StateScanning
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info("Starting reader session")
	if err := s.host.Begin(sessionCtx, s); err != nil {
		s.toIdle()
		return fmt.Errorf("begin %s session: %w", s.host.Name(), err)
	}
	return nil
}

// Stop ends the active reader session.
func (s *Scanner) Stop() error {
	if s.State() != StateScanning {
		return ErrNotActive
	}

	s.log.Info("Stopping reader session")
	if err := s.host.Invalidate(); err != nil {
		s.toIdle()
		return fmt.Errorf("invalidate %s session: %w", s.host.Name(), err)
	}
	return nil
}

func (s *Scanner) toIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// OnTagsDetected records the messages as one batch from the host.
func (s *Scanner) OnTagsDetected(messages []ndef.Message) {
	s.Deliver(s.host.Name(), messages)
}

// Deliver records a detection event from source and schedules a display
// refresh. It never blocks on the displays. Returns the batch index.
func (s *Scanner) Deliver(source string, messages []ndef.Message) int {
	return s.DeliverBatch(scanlog.NewBatch(source, messages))
}

// DeliverBatch is Deliver for a batch built by the caller, for example one
// carrying its own scan time.
func (s *Scanner) DeliverBatch(b scanlog.Batch) int {
	source, messages := b.Source, b.Messages
	index := s.store.Append(b)

	entry := s.log.WithFields(logrus.Fields{"batch": index, "source": source})
	entry.Infof("Detected %s", scanlog.SummarizeCount(len(messages)).Label)
	for i, m := range messages {
		for j, r := range m.Records {
			entry.WithFields(view.LogFields(r)).WithFields(logrus.Fields{"message": i, "record": j}).Debug("Record")
		}
	}

	refresh := &Refresh{BatchIndex: index, BatchCount: s.store.BatchCount(), Source: source}
	select {
	case s.queue <- event{refresh: refresh}:
	default:
		// Queue full; the next refresh carries the current count.
		entry.Debug("Display queue full, refresh coalesced")
	}
	return index
}

// OnSessionInvalidated records the end of the session and returns the
// scanner to idle so Start may be called again.
func (s *Scanner) OnSessionInvalidated(err error) {
	s.toIdle()

	se := NewSessionError(s.host.Name(), err)
	entry := s.log.WithField("reason", se.Reason.String())
	switch {
	case se.Reason == ReasonUserCanceled, se.Reason == ReasonFirstRead:
		entry.Info("Reader session ended")
	case se.Reason == ReasonTimeout:
		entry.Warn("Reader session timed out")
	default:
		entry.WithError(se.Cause).Warn("Reader session invalidated")
	}

	ev := event{ended: se}
	select {
	case s.queue <- ev:
	default:
		go func() {
			select {
			case s.queue <- ev:
			case <-s.done:
			}
		}()
	}
}
