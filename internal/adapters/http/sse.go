package http

import (
	"errors"
	"sync"

	"github.com/squadmap/squadmap/internal/core"
)

// sinkBuffer bounds how far a live subscriber may lag behind the room
// before it is treated as dead and pruned.
const sinkBuffer = 256

var errSinkFull = errors.New("subscriber buffer full")

// sseSink adapts one open event-stream connection to core.EventSink.
// The handler goroutine drains events and writes SSE frames; the room
// pushes into the channel without ever blocking.
type sseSink struct {
	events chan core.Event
	once   sync.Once
}

func newSSESink() *sseSink {
	return &sseSink{events: make(chan core.Event, sinkBuffer)}
}

func (s *sseSink) TrySend(ev core.Event) error {
	select {
	case s.events <- ev:
		return nil
	default:
		return errSinkFull
	}
}

// Close is idempotent: the room calls it on forced deletion and again
// when pruning, the handler must survive both.
func (s *sseSink) Close() {
	s.once.Do(func() { close(s.events) })
}
