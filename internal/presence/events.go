package presence

import "encoding/json"

// Outbound event names.
const (
	EventUserOnline        = "userOnline"
	EventUserOffline       = "userOffline"
	EventOnlineUsers       = "onlineUsers"
	EventTyping            = "typing"
	EventUserStoppedTyping = "userStoppedTyping"
	EventNewNotification   = "newNotification"
)

// Envelope is the frame written to every socket.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// StatusEvent is the payload of userOnline and userOffline.
type StatusEvent struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// OnlineUsersEvent is the payload of onlineUsers.
type OnlineUsersEvent struct {
	Users []string `json:"users"`
}

// TypingEvent is the payload of typing.
type TypingEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

// StoppedTypingEvent is the payload of userStoppedTyping.
type StoppedTypingEvent struct {
	UserID string `json:"userId"`
}

// Encode marshals an event envelope.
func Encode(event string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}
