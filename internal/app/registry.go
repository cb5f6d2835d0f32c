package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/squadmap/squadmap/internal/core"
	"github.com/squadmap/squadmap/internal/domain"
)

// Registry owns the room name -> Room mapping. It is the only creation
// and deletion path for rooms; everything else holds a *core.Room it
// got from here.
type Registry struct {
	mu           sync.RWMutex
	rooms        map[domain.RoomName]*core.Room
	historyLimit int
	policy       DeletePolicy
}

func NewRegistry(historyLimit int, policy DeletePolicy) *Registry {
	return &Registry{
		rooms:        make(map[domain.RoomName]*core.Room),
		historyLimit: historyLimit,
		policy:       policy,
	}
}

// EnsureRoom returns the named room, creating it with the given password
// if absent. An existing room is returned only when the password matches.
func (r *Registry) EnsureRoom(name domain.RoomName, password string) (*core.Room, error) {
	r.mu.RLock()
	room, ok := r.rooms[name]
	r.mu.RUnlock()
	if ok {
		if room.Password() != password {
			return nil, ErrBadPassword
		}
		return room, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok = r.rooms[name]; ok {
		if room.Password() != password {
			return nil, ErrBadPassword
		}
		return room, nil
	}
	room = core.NewRoom(name, password, r.historyLimit)
	r.rooms[name] = room
	log.Info().Str("module", "app.registry").Str("room", string(name)).Msg("created room")
	return room, nil
}

// Get never creates.
func (r *Registry) Get(name domain.RoomName) (*core.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Authorize checks existence and password without ever mutating.
func (r *Registry) Authorize(name domain.RoomName, password string) error {
	room, err := r.Get(name)
	if err != nil {
		return err
	}
	if room.Password() != password {
		return ErrBadPassword
	}
	return nil
}

// List returns a sorted snapshot of current room names.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, string(name))
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Delete validates existence and password, then removes the room. Under
// ForceClose every live subscriber stream is terminated; under
// RefuseOccupied the deletion fails while subscribers are connected.
func (r *Registry) Delete(name domain.RoomName, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Password() != password {
		return ErrBadPassword
	}
	if r.policy == RefuseOccupied && room.SubscriberCount() > 0 {
		return ErrRoomOccupied
	}
	delete(r.rooms, name)
	room.CloseAll()
	log.Info().Str("module", "app.registry").Str("room", string(name)).Msg("deleted room")
	return nil
}
