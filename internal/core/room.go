package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/squadmap/squadmap/internal/domain"
)

// Room is a threadsafe in-memory room: shared password, bounded message
// history, presence board, and the live subscriber set. It is the sole
// owner of all three; callers only ever get copies.
type Room struct {
	name     domain.RoomName
	password string

	mu       sync.Mutex
	lastTS   int64
	limit    int
	messages []domain.Message
	presence map[string]domain.Location
	sinks    map[SubscriberID]EventSink
}

func NewRoom(name domain.RoomName, password string, historyLimit int) *Room {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &Room{
		name:     name,
		password: password,
		limit:    historyLimit,
		presence: make(map[string]domain.Location),
		sinks:    make(map[SubscriberID]EventSink),
	}
}

func (r *Room) Name() domain.RoomName { return r.name }

// Password never changes after construction; recreating the room through
// the registry is the only way to get a different one.
func (r *Room) Password() string { return r.password }

func (r *Room) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks)
}

// stamp returns a non-decreasing millisecond timestamp. Callers hold r.mu.
func (r *Room) stamp() int64 {
	ts := time.Now().UnixMilli()
	if ts < r.lastTS {
		ts = r.lastTS
	}
	r.lastTS = ts
	return ts
}

// PostMessage appends to the history, evicting the oldest entry above
// the cap, and fans the message out to all live subscribers.
func (r *Room) PostMessage(name, text string) domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := domain.Message{Name: name, Text: text, Time: r.stamp()}
	r.messages = append(r.messages, msg)
	if len(r.messages) > r.limit {
		r.messages = r.messages[len(r.messages)-r.limit:]
	}
	r.broadcast("message", msg)
	return msg
}

// SetLocation overwrites the presence entry for name and fans it out.
func (r *Room) SetLocation(name string, lat, lon float64) domain.Location {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc := domain.Location{Name: name, Lat: lat, Lon: lon, Time: r.stamp()}
	r.presence[name] = loc
	r.broadcast("location", loc)
	return loc
}

// ClearLocation drops the presence entry for name and announces it.
func (r *Room) ClearLocation(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.presence, name)
	r.broadcast("remove", map[string]string{"name": name})
}

// Subscribe atomically snapshots history+presence and registers the sink.
// The caller must deliver the returned Replay before draining the sink:
// every event committed before registration is in the snapshot, every
// event after it lands in the sink, so writing snapshot first yields the
// strict replay-then-live order with no duplicates.
func (r *Room) Subscribe(id SubscriberID, sink EventSink) Replay {
	r.mu.Lock()
	defer r.mu.Unlock()

	rp := Replay{
		Messages: make([]domain.Message, len(r.messages)),
		Presence: make([]domain.Location, 0, len(r.presence)),
	}
	copy(rp.Messages, r.messages)
	for _, loc := range r.presence {
		rp.Presence = append(rp.Presence, loc)
	}

	r.sinks[id] = sink
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("sub", string(id)).Int("subs", len(r.sinks)).Msg("subscribed")
	return rp
}

func (r *Room) Unsubscribe(id SubscriberID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sinks, id)
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Str("sub", string(id)).Int("subs", len(r.sinks)).Msg("unsubscribed")
}

// CloseAll force-closes every live subscriber. Used on room deletion.
func (r *Room) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, sink := range r.sinks {
		sink.Close()
		delete(r.sinks, id)
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Msg("closed all subscribers")
}

// broadcast serializes payload once and pushes the frame to every sink.
// A failing sink is removed and closed; the publisher never sees the
// failure. Callers hold r.mu.
func (r *Room) broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.name)).Str("event", event).Msg("marshal payload")
		return
	}
	ev := Event{Name: event, Data: string(data)}
	for id, sink := range r.sinks {
		if err := sink.TrySend(ev); err != nil {
			delete(r.sinks, id)
			sink.Close()
			log.Warn().Str("module", "core.room").Str("room", string(r.name)).Str("sub", string(id)).Msg("dropped dead subscriber")
		}
	}
}
