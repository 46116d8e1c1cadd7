// Package notify decides, for every newly created message, which members did
// not witness it live, persists a notification for each of them and pushes a
// live event to every session they have open.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification by the kind of room it came from.
type Type string

const (
	ChannelMessage Type = "CHANNEL_MESSAGE"
	DirectMessage  Type = "DIRECT_MESSAGE"
)

// Notification is the durable record written for one recipient.
type Notification struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"userId"`
	Type           Type      `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	ChannelID      string    `json:"channelId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RoomID returns the channel or conversation the notification points at.
func (n Notification) RoomID() string {
	if n.ChannelID != "" {
		return n.ChannelID
	}
	return n.ConversationID
}

// Message is the post-commit payload handed over by the message-creation
// collaborator. Exactly one of ChannelID and ConversationID is set.
type Message struct {
	ID             string `json:"id" validate:"required"`
	Content        string `json:"content"`
	SenderID       string `json:"senderId" validate:"required"`
	SenderName     string `json:"senderName"`
	ChannelID      string `json:"channelId" validate:"required_without=ConversationID,excluded_with=ConversationID"`
	ConversationID string `json:"conversationId" validate:"required_without=ChannelID"`
}

// Channel is the subset of channel metadata the fan-out needs.
type Channel struct {
	ID       string
	Name     string
	ServerID string
}

// Conversation is a two-party direct conversation.
type Conversation struct {
	ID          string
	MemberOneID string
	MemberTwoID string
}

// OtherParticipant returns the member that is not userID.
func (c Conversation) OtherParticipant(userID string) (string, bool) {
	switch userID {
	case c.MemberOneID:
		return c.MemberTwoID, true
	case c.MemberTwoID:
		return c.MemberOneID, true
	default:
		return "", false
	}
}

// Directory resolves rooms and their audiences from the relational store.
type Directory interface {
	Channel(ctx context.Context, channelID string) (Channel, error)
	ServerMembers(ctx context.Context, serverID string) ([]string, error)
	Conversation(ctx context.Context, conversationID string) (Conversation, error)
}

// Store persists notifications. InsertNotifications is all-or-nothing.
type Store interface {
	InsertNotifications(ctx context.Context, notifications []Notification) error
}

// Presence is the read side of the connection registry.
type Presence interface {
	IsOnline(userID string) bool
	SessionsOf(userID string) []string
}

// RoomLookup is the read side of the active-room tracker.
type RoomLookup interface {
	ActiveRoomOf(userID string) (string, bool)
}

// Pusher writes an encoded frame to one session.
type Pusher interface {
	SendToSession(sessionID string, payload []byte) bool
}

// Hook is the narrow interface message creation calls after commit.
type Hook interface {
	OnMessageCreated(ctx context.Context, msg Message)
}
