package notify

import "errors"

var (
	ErrChannelNotFound      = errors.New("notify: channel not found")
	ErrConversationNotFound = errors.New("notify: conversation not found")
	ErrInvalidMessage       = errors.New("notify: invalid message")
	ErrNotParticipant       = errors.New("notify: sender is not a conversation participant")
)
