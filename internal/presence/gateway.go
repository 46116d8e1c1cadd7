package presence

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrEmptyRoom is returned when a room id is blank.
var ErrEmptyRoom = errors.New("presence: room id is empty")

// RoomTransport is the room subscription primitive of the socket layer.
type RoomTransport interface {
	Subscribe(sessionID, roomID string) bool
	Unsubscribe(sessionID, roomID string) bool
	// BroadcastToRoom sends payload to every subscriber of roomID except
	// exceptSessionID and returns the number of sessions reached.
	BroadcastToRoom(roomID string, payload []byte, exceptSessionID string) int
}

// Gateway implements room join/leave and the typing indicator relay.
type Gateway struct {
	rooms     *ActiveRooms
	transport RoomTransport
	log       logrus.FieldLogger
}

// NewGateway builds a Gateway that records joins in rooms.
func NewGateway(rooms *ActiveRooms, transport RoomTransport, log logrus.FieldLogger) *Gateway {
	return &Gateway{rooms: rooms, transport: transport, log: log}
}

// JoinRoom subscribes the session to roomID and makes it the user's active room.
func (g *Gateway) JoinRoom(s Session, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrEmptyRoom
	}
	g.transport.Subscribe(s.ID, roomID)
	g.rooms.SetActiveRoom(s.UserID, roomID)
	g.log.WithFields(logrus.Fields{"user_id": s.UserID, "session_id": s.ID, "room_id": roomID}).Debug("joined room")
	return nil
}

// LeaveRoom unsubscribes the session and clears the user's active room if it
// still points at roomID.
func (g *Gateway) LeaveRoom(s Session, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrEmptyRoom
	}
	g.transport.Unsubscribe(s.ID, roomID)
	g.rooms.ClearActiveRoom(s.UserID, roomID)
	g.log.WithFields(logrus.Fields{"user_id": s.UserID, "session_id": s.ID, "room_id": roomID}).Debug("left room")
	return nil
}

// StartTyping relays a typing event to the other sessions in the room.
func (g *Gateway) StartTyping(s Session, roomID string) (int, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return 0, ErrEmptyRoom
	}
	return g.relay(roomID, EventTyping, TypingEvent{UserID: s.UserID, Username: s.Name, RoomID: roomID}, s.ID)
}

// StopTyping relays a stopped-typing event to the other sessions in the room.
func (g *Gateway) StopTyping(s Session, roomID string) (int, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return 0, ErrEmptyRoom
	}
	return g.relay(roomID, EventUserStoppedTyping, StoppedTypingEvent{UserID: s.UserID}, s.ID)
}

func (g *Gateway) relay(roomID, event string, data any, exceptSessionID string) (int, error) {
	payload, err := Encode(event, data)
	if err != nil {
		return 0, err
	}
	return g.transport.BroadcastToRoom(roomID, payload, exceptSessionID), nil
}
