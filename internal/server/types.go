package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Inbound client event names.
const (
	eventJoinRoom           = "joinRoom"
	eventLeaveRoom          = "leaveRoom"
	eventStartTyping        = "startTyping"
	eventUserStoppedTyping  = "userStoppedTyping"
	eventRequestOnlineUsers = "requestOnlineUsers"
)

var errMissingRoomID = errors.New("server: missing roomId")

var validate = validator.New()

// inboundMessage is the envelope every client frame must use.
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// inboundEvent is an inbound frame queued for the hub's event loop.
type inboundEvent struct {
	client *Client
	msg    inboundMessage
}

type roomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

// parseRoomID accepts either a bare JSON string or {"roomId": "..."}.
func parseRoomID(data json.RawMessage) (string, error) {
	var payload roomPayload
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &payload.RoomID); err != nil {
			return "", err
		}
	} else if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", err
		}
	}

	payload.RoomID = strings.TrimSpace(payload.RoomID)
	if err := validate.Struct(payload); err != nil {
		return "", fmt.Errorf("%w: %v", errMissingRoomID, err)
	}
	return payload.RoomID, nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
