// Package hub implements the in-process signaling core: a registry of live
// class-session rooms and the relay/broadcast rules inside each room.
package hub

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Hub is the single source of truth for which rooms currently exist.
// Room identifiers are case-insensitive: "abc" and "ABC" resolve to the
// same room. Construct one Hub per process and inject it; there is no
// package-level registry.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*Room
	log   *zap.Logger
}

// New creates an empty Hub.
func New(log *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]*Room),
		log:   log,
	}
}

// Normalize maps a free-form room identifier to its canonical form.
func Normalize(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

// GetOrCreate returns the room for the given identifier, creating and
// registering it if needed. Concurrent calls with the same identifier
// always observe the same instance.
func (h *Hub) GetOrCreate(roomID string) *Room {
	id := Normalize(roomID)

	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[id]
	if !ok {
		room = newRoom(id, h.log)
		h.rooms[id] = room
		h.log.Info("room created", zap.String("room", id))
	}
	return room
}

// Get looks a room up without creating it.
func (h *Hub) Get(roomID string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[Normalize(roomID)]
	return room, ok
}

// Remove deletes the registry entry unconditionally. Participants still
// attached keep their Room pointer but any later Join on it fails with
// ErrRoomClosed.
func (h *Hub) Remove(roomID string) {
	id := Normalize(roomID)

	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[id]
	if !ok {
		return
	}
	room.mu.Lock()
	room.closed = true
	room.mu.Unlock()
	delete(h.rooms, id)
	h.log.Info("room removed", zap.String("room", id))
}

// CleanupIfEmpty removes the room only if it has no participants. The
// emptiness check and the removal happen under both the hub lock and the
// room lock, and the room is marked closed, so a join racing with cleanup
// either lands before the check or fails with ErrRoomClosed and re-resolves
// a fresh room. No join is ever lost.
func (h *Hub) CleanupIfEmpty(roomID string) {
	id := Normalize(roomID)

	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[id]
	if !ok {
		return
	}

	room.mu.Lock()
	empty := len(room.participants) == 0
	if empty {
		room.closed = true
	}
	room.mu.Unlock()

	if empty {
		delete(h.rooms, id)
		h.log.Info("empty room removed", zap.String("room", id))
	}
}

// Count returns the number of live rooms, for diagnostics.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
