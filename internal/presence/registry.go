package presence

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry maps a user id to the set of transport sessions the user has open.
// A user is online while at least one session is registered.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[string]struct{})}
}

// Register adds sessionID to userID's session set. It reports true only when
// the session is the first one for the user. Registering a pair that is
// already present is a no-op.
func (r *Registry) Register(userID, sessionID string) bool {
	if userID == "" || sessionID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[string]struct{})
		r.sessions[userID] = set
	}
	if _, exists := set[sessionID]; exists {
		return false
	}
	set[sessionID] = struct{}{}
	return len(set) == 1
}

// Unregister removes sessionID from userID's session set. It reports true only
// when the removal left the user with no sessions.
func (r *Registry) Unregister(userID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		return false
	}
	if _, exists := set[sessionID]; !exists {
		return false
	}
	delete(set, sessionID)
	if len(set) > 0 {
		return false
	}
	delete(r.sessions, userID)
	return true
}

// SessionsOf returns a sorted snapshot of the user's open sessions.
func (r *Registry) SessionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.sessions[userID])
	sort.Strings(ids)
	return ids
}

// OnlineUsers returns a sorted snapshot of every user with an open session.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.sessions)
	sort.Strings(ids)
	return ids
}

// IsOnline reports whether the user has at least one open session.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions[userID]) > 0
}

// SessionCount returns the number of sessions across all users.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, set := range r.sessions {
		count += len(set)
	}
	return count
}
