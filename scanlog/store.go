// Package scanlog holds the append-only, in-memory log of scan batches that
// drives the listing UI.
package scanlog

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dotside-studios/davi-ndef-viewer/ndef"
)

// Batch is the set of messages delivered by one detection event.
type Batch struct {
	ID        string
	Source    string
	ScannedAt time.Time
	Messages  []ndef.Message
}

// NewBatch creates a batch stamped with a fresh ID and the current time.
func NewBatch(source string, messages []ndef.Message) Batch {
	return Batch{
		ID:        uuid.NewString(),
		Source:    source,
		ScannedAt: time.Now(),
		Messages:  messages,
	}
}

// Clone returns a deep copy of the batch.
func (b Batch) Clone() Batch {
	out := b
	if b.Messages != nil {
		out.Messages = make([]ndef.Message, len(b.Messages))
		for i, m := range b.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

// ChangeKind describes what happened to the log.
type ChangeKind int

const (
	ChangeAppended ChangeKind = iota
	ChangeCleared
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAppended:
		return "appended"
	case ChangeCleared:
		return "cleared"
	}
	return "unknown"
}

// Change is sent to subscribers after the log is mutated.
type Change struct {
	Kind       ChangeKind
	BatchIndex int // index of the appended batch, -1 for ChangeCleared
	BatchCount int // number of batches after the change
}

// subscriberBuffer bounds how many changes a slow subscriber may lag behind
// before newer changes are dropped for it. Every change carries the full
// batch count, so a subscriber that misses some still converges.
const subscriberBuffer = 16

// Store is the ordered, append-only scan log. Batches are deep-copied on the
// way in and on the way out, so stored data is never mutated.
// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	batches []Batch

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int
}

// NewStore creates an empty log.
func NewStore() *Store {
	return &Store{subs: make(map[int]chan Change)}
}

// Append adds a batch to the end of the log and returns its index.
func (s *Store) Append(batch Batch) int {
	stored := batch.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.ScannedAt.IsZero() {
		stored.ScannedAt = time.Now()
	}

	s.mu.Lock()
	s.batches = append(s.batches, stored)
	index := len(s.batches) - 1
	count := len(s.batches)
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeAppended, BatchIndex: index, BatchCount: count})
	return index
}

// BatchCount returns the number of stored batches.
func (s *Store) BatchCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.batches)
}

// MessageCount returns the number of messages in the batch at batchIndex.
func (s *Store) MessageCount(batchIndex int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if batchIndex < 0 || batchIndex >= len(s.batches) {
		return 0, &IndexError{Op: "MessageCount", Kind: "batch", Index: batchIndex, Len: len(s.batches)}
	}
	return len(s.batches[batchIndex].Messages), nil
}

// MessageAt returns a copy of message messageIndex of batch batchIndex.
func (s *Store) MessageAt(batchIndex, messageIndex int) (ndef.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if batchIndex < 0 || batchIndex >= len(s.batches) {
		return ndef.Message{}, &IndexError{Op: "MessageAt", Kind: "batch", Index: batchIndex, Len: len(s.batches)}
	}
	messages := s.batches[batchIndex].Messages
	if messageIndex < 0 || messageIndex >= len(messages) {
		return ndef.Message{}, &IndexError{Op: "MessageAt", Kind: "message", Index: messageIndex, Len: len(messages)}
	}
	return messages[messageIndex].Clone(), nil
}

// BatchAt returns a copy of the batch at index.
func (s *Store) BatchAt(index int) (Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.batches) {
		return Batch{}, &IndexError{Op: "BatchAt", Kind: "batch", Index: index, Len: len(s.batches)}
	}
	return s.batches[index].Clone(), nil
}

// Batches returns a snapshot copy of the whole log.
func (s *Store) Batches() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Batch, len(s.batches))
	for i, b := range s.batches {
		out[i] = b.Clone()
	}
	return out
}

// Clear drops every batch. It is used when the owning display context is
// torn down; indexes handed out earlier become invalid.
func (s *Store) Clear() {
	s.mu.Lock()
	s.batches = nil
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeCleared, BatchIndex: -1, BatchCount: 0})
}

// Subscribe returns a channel receiving every change to the log and a
// function that cancels the subscription and closes the channel.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) publish(change Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
			// Subscriber is behind; it will catch up from a later change.
		}
	}
}
