package core

import "github.com/squadmap/squadmap/internal/domain"

// Event is a named frame with a pre-serialized JSON payload.
// Payload is marshaled once per publish, not per subscriber.
type Event struct {
	Name string
	Data string
}

type SubscriberID string

// EventSink abstracts one live subscriber connection.
// Owned by the adapter; the room only pushes frames into it, and may
// Close it when the whole room is torn down.
type EventSink interface {
	// TrySend must not block. A non-nil error marks the sink dead and
	// the room drops it.
	TrySend(Event) error
	Close()
}

// Replay is the snapshot a new subscriber must receive, as discrete
// frames, before any live event: full history in append order, then
// the presence board (one entry per name).
type Replay struct {
	Messages []domain.Message
	Presence []domain.Location
}
