package presence

import "sync"

// ActiveRooms is a last-write-wins register holding the single room each user
// is considered to be viewing. It is keyed by user, not by session.
type ActiveRooms struct {
	mu    sync.RWMutex
	rooms map[string]string
}

// NewActiveRooms returns an empty tracker.
func NewActiveRooms() *ActiveRooms {
	return &ActiveRooms{rooms: make(map[string]string)}
}

// SetActiveRoom records roomID as the user's current room, replacing any
// previous value.
func (a *ActiveRooms) SetActiveRoom(userID, roomID string) {
	if userID == "" || roomID == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.rooms[userID] = roomID
}

// ClearActiveRoom removes the user's entry only if it still points at roomID,
// so a stale leave for an older room cannot wipe a newer join. It reports
// whether the entry was removed.
func (a *ActiveRooms) ClearActiveRoom(userID, roomID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, ok := a.rooms[userID]
	if !ok || current != roomID {
		return false
	}
	delete(a.rooms, userID)
	return true
}

// ActiveRoomOf returns the user's current room, if any.
func (a *ActiveRooms) ActiveRoomOf(userID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	roomID, ok := a.rooms[userID]
	return roomID, ok
}
