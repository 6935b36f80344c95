package scanlog

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange matches every *IndexError via errors.Is.
var ErrIndexOutOfRange = errors.New("index out of range")

// IndexError reports a read against the log with an invalid batch or
// message index. It is a precondition violation in the display layer.
type IndexError struct {
	Op    string // "MessageCount", "MessageAt", "BatchAt"
	Kind  string // "batch" or "message"
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: %s index %d out of range [0,%d)", e.Op, e.Kind, e.Index, e.Len)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// IsIndexOutOfRange reports whether err is an index error.
func IsIndexOutOfRange(err error) bool {
	return errors.Is(err, ErrIndexOutOfRange)
}
