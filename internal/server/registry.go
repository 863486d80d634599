// Package server tracks the set of known rooms and their current members via
// the Registry type.
package server

import "sync"

// Registry owns the process-wide room state: the ordered list of advertised
// room names and, per room, the display names currently joined. State is
// in-memory only and does not survive a restart.
//
// The hub event loop is the only mutator; the lock exists so HTTP handlers
// can snapshot the room list from request goroutines.
type Registry struct {
	mu      sync.RWMutex
	names   []string
	members map[string][]string
}

// NewRegistry creates a Registry seeded with the given room names, preserving
// their order. Seed rooms start with no members.
func NewRegistry(seedRooms []string) *Registry {
	r := &Registry{
		names:   make([]string, 0, len(seedRooms)),
		members: make(map[string][]string, len(seedRooms)),
	}
	for _, name := range seedRooms {
		if _, exists := r.members[name]; exists {
			continue
		}
		r.names = append(r.names, name)
		r.members[name] = nil
	}
	return r
}

// Rooms returns the advertised room names in insertion order: seed rooms
// first, then creation order.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// CreateRoom adds an empty room and returns true, or returns false if the
// name is already taken (exact string match).
func (r *Registry) CreateRoom(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[name]; exists {
		return false
	}
	r.names = append(r.names, name)
	r.members[name] = nil
	return true
}

// IsNameTaken reports whether username is currently a member of room.
// An unknown room is never taken.
func (r *Registry) IsNameTaken(room, username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, member := range r.members[room] {
		if member == username {
			return true
		}
	}
	return false
}

// AddMember appends username to the room's member list, creating the member
// list if the room is unknown. Rooms created this way are not added to the
// advertised list; only CreateRoom and the seed list advertise names.
// Duplicate entries are not prevented at this layer.
func (r *Registry) AddMember(room, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[room] = append(r.members[room], username)
}

// RemoveMember removes every entry matching username from the room's member
// list. Unknown rooms and absent usernames are a no-op.
func (r *Registry) RemoveMember(room, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.members[room]
	if !ok {
		return
	}
	remaining := current[:0]
	for _, member := range current {
		if member != username {
			remaining = append(remaining, member)
		}
	}
	r.members[room] = remaining
}

// Members returns a copy of the room's current member list.
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.members[room]...)
}
