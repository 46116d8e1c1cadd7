package presence

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Session identifies one live transport connection and the user that owns it.
type Session struct {
	ID     string
	UserID string
	Name   string
}

// Transport delivers encoded frames to sessions.
type Transport interface {
	// Broadcast sends payload to every session except exceptSessionID and
	// returns the number of sessions reached.
	Broadcast(payload []byte, exceptSessionID string) int
	// SendToSession sends payload to a single session.
	SendToSession(sessionID string, payload []byte) bool
}

// Status is the presence answer for one user. LastSeen is never tracked and
// always encodes as null.
type Status struct {
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

// Broadcaster announces online/offline transitions and answers presence
// queries from the Registry.
type Broadcaster struct {
	registry  *Registry
	transport Transport
	log       logrus.FieldLogger
}

// NewBroadcaster builds a Broadcaster over registry that writes through transport.
func NewBroadcaster(registry *Registry, transport Transport, log logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{registry: registry, transport: transport, log: log}
}

// Connect registers the session. When it is the user's first session every
// other session is told the user came online. The new session always receives
// the current online snapshot privately. It reports whether the user went online.
func (b *Broadcaster) Connect(s Session) bool {
	first := b.registry.Register(s.UserID, s.ID)
	if first {
		b.broadcast(EventUserOnline, StatusEvent{UserID: s.UserID, IsOnline: true}, s.ID)
	}
	b.SendOnlineUsers(s.ID)
	return first
}

// Disconnect unregisters the session and, when it was the user's last one,
// tells every remaining session the user went offline. It reports whether the
// user went offline.
func (b *Broadcaster) Disconnect(s Session) bool {
	last := b.registry.Unregister(s.UserID, s.ID)
	if last {
		b.broadcast(EventUserOffline, StatusEvent{UserID: s.UserID, IsOnline: false}, "")
	}
	return last
}

// SendOnlineUsers writes the online snapshot to one session.
func (b *Broadcaster) SendOnlineUsers(sessionID string) {
	payload, err := Encode(EventOnlineUsers, OnlineUsersEvent{Users: b.registry.OnlineUsers()})
	if err != nil {
		b.log.WithError(err).Error("encode online users snapshot")
		return
	}
	if !b.transport.SendToSession(sessionID, payload) {
		b.log.WithField("session_id", sessionID).Debug("online users snapshot not delivered")
	}
}

func (b *Broadcaster) broadcast(event string, data any, exceptSessionID string) {
	payload, err := Encode(event, data)
	if err != nil {
		b.log.WithError(err).WithField("event", event).Error("encode presence event")
		return
	}
	reached := b.transport.Broadcast(payload, exceptSessionID)
	b.log.WithFields(logrus.Fields{"event": event, "reached": reached}).Debug("presence broadcast")
}

// UsersPresence answers a batch query keyed by the sanitised, de-duplicated ids.
func (b *Broadcaster) UsersPresence(userIDs []string) map[string]Status {
	ids := SanitizeUserIDs(userIDs)
	result := make(map[string]Status, len(ids))
	for _, id := range ids {
		result[id] = Status{IsOnline: b.registry.IsOnline(id)}
	}
	return result
}

// UserPresence answers a single-user query.
func (b *Broadcaster) UserPresence(userID string) Status {
	return Status{IsOnline: b.registry.IsOnline(strings.TrimSpace(userID))}
}

// OnlineCount returns the number of online users.
func (b *Broadcaster) OnlineCount() int {
	return len(b.registry.OnlineUsers())
}

// SanitizeUserIDs trims every id, drops blanks and removes duplicates while
// keeping first-seen order.
func SanitizeUserIDs(userIDs []string) []string {
	trimmed := lo.Map(userIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})
	return lo.Uniq(lo.Compact(trimmed))
}

// ParseUserIDs splits a comma-joined id list and sanitises it.
func ParseUserIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	return SanitizeUserIDs(strings.Split(raw, ","))
}
