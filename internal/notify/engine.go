package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/nexus-realtime/internal/presence"
	"github.com/Tyrowin/nexus-realtime/internal/telemetry"
)

// LiveNotification is the payload of the newNotification socket event.
type LiveNotification struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	Type           Type   `json:"type"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
}

// Result describes one completed fan-out.
type Result struct {
	Notifications []Notification
	// Delivered counts live frames accepted by sessions.
	Delivered int
}

// Recipients returns the notified user ids in audience order.
func (r Result) Recipients() []string {
	return lo.Map(r.Notifications, func(n Notification, _ int) string { return n.UserID })
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Directory Directory
	Store     Store
	Presence  Presence
	Rooms     RoomLookup
	Pusher    Pusher
	Log       logrus.FieldLogger
	Metrics   *telemetry.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine computes notification audiences and delivers to them.
type Engine struct {
	directory Directory
	store     Store
	presence  Presence
	rooms     RoomLookup
	pusher    Pusher
	log       logrus.FieldLogger
	metrics   *telemetry.Metrics
	now       func() time.Time
	validate  *validator.Validate
}

// NewEngine builds an Engine from deps.
func NewEngine(deps Deps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		directory: deps.Directory,
		store:     deps.Store,
		presence:  deps.Presence,
		rooms:     deps.Rooms,
		pusher:    deps.Pusher,
		log:       deps.Log,
		metrics:   deps.Metrics,
		now:       now,
		validate:  validator.New(),
	}
}

// OnMessageCreated runs the fan-out for msg and swallows every failure, so
// message creation is never affected by notification delivery.
func (e *Engine) OnMessageCreated(ctx context.Context, msg Message) {
	result, err := e.Dispatch(ctx, msg)
	fields := logrus.Fields{
		"message_id":      msg.ID,
		"channel_id":      msg.ChannelID,
		"conversation_id": msg.ConversationID,
	}
	switch {
	case IsNotFound(err):
		e.log.WithFields(fields).WithError(err).Info("message room not found; notification dropped")
		return
	case err != nil:
		e.log.WithFields(fields).WithError(err).Warn("notification fan-out abandoned")
		return
	}
	e.log.WithFields(fields).WithFields(logrus.Fields{
		"notified":  len(result.Notifications),
		"delivered": result.Delivered,
	}).Debug("notification fan-out completed")
}

// Dispatch runs the fan-out for msg and reports what it did. Presence and
// active-room state is read at call time.
func (e *Engine) Dispatch(ctx context.Context, msg Message) (Result, error) {
	if err := e.validate.Struct(msg); err != nil {
		e.metrics.FanoutFailed(ctx, "invalid")
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var (
		notifications []Notification
		err           error
	)
	if msg.ChannelID != "" {
		notifications, err = e.channelAudience(ctx, msg)
	} else {
		notifications, err = e.directAudience(ctx, msg)
	}
	if err != nil {
		e.metrics.FanoutFailed(ctx, "directory")
		return Result{}, err
	}
	if len(notifications) == 0 {
		return Result{}, nil
	}

	if err := e.store.InsertNotifications(ctx, notifications); err != nil {
		e.metrics.FanoutFailed(ctx, "store")
		return Result{}, fmt.Errorf("insert notifications for message %s: %w", msg.ID, err)
	}
	e.metrics.NotificationsCreated(ctx, string(notifications[0].Type), len(notifications))

	delivered := e.push(notifications)
	e.metrics.NotificationsPushed(ctx, delivered)

	return Result{Notifications: notifications, Delivered: delivered}, nil
}

func (e *Engine) channelAudience(ctx context.Context, msg Message) ([]Notification, error) {
	channel, err := e.directory.Channel(ctx, msg.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("resolve channel %s: %w", msg.ChannelID, err)
	}
	members, err := e.directory.ServerMembers(ctx, channel.ServerID)
	if err != nil {
		return nil, fmt.Errorf("resolve members of server %s: %w", channel.ServerID, err)
	}

	sender := senderName(msg)
	createdAt := e.now().UTC()
	var out []Notification
	for _, member := range lo.Uniq(members) {
		if member == msg.SenderID || !e.unseen(member, channel.ID) {
			continue
		}
		out = append(out, Notification{
			ID:        uuid.New(),
			UserID:    member,
			Type:      ChannelMessage,
			Title:     channelTitle(channel.Name),
			Message:   body(sender, msg.Content),
			ChannelID: channel.ID,
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
			CreatedAt: createdAt,
		})
	}
	return out, nil
}

func (e *Engine) directAudience(ctx context.Context, msg Message) ([]Notification, error) {
	conversation, err := e.directory.Conversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation %s: %w", msg.ConversationID, err)
	}
	recipient, ok := conversation.OtherParticipant(msg.SenderID)
	if !ok {
		return nil, fmt.Errorf("conversation %s, sender %s: %w", conversation.ID, msg.SenderID, ErrNotParticipant)
	}
	if recipient == "" || recipient == msg.SenderID || !e.unseen(recipient, conversation.ID) {
		return nil, nil
	}

	sender := senderName(msg)
	return []Notification{{
		ID:             uuid.New(),
		UserID:         recipient,
		Type:           DirectMessage,
		Title:          directTitle(sender),
		Message:        body(sender, msg.Content),
		ConversationID: conversation.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		CreatedAt:      e.now().UTC(),
	}}, nil
}

// unseen reports whether userID did not witness a message in roomID live:
// either no session is open or the user is looking at another room.
func (e *Engine) unseen(userID, roomID string) bool {
	if !e.presence.IsOnline(userID) {
		return true
	}
	active, ok := e.rooms.ActiveRoomOf(userID)
	return !ok || active != roomID
}

// push sends a newNotification frame to every open session of each recipient.
func (e *Engine) push(notifications []Notification) int {
	delivered := 0
	for _, n := range notifications {
		sessions := e.presence.SessionsOf(n.UserID)
		if len(sessions) == 0 {
			continue
		}
		payload, err := presence.Encode(presence.EventNewNotification, live(n))
		if err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{"user_id": n.UserID, "room_id": n.RoomID()}).
				Error("encode live notification")
			continue
		}
		for _, sessionID := range sessions {
			if e.pusher.SendToSession(sessionID, payload) {
				delivered++
				continue
			}
			e.log.WithFields(logrus.Fields{"user_id": n.UserID, "session_id": sessionID, "room_id": n.RoomID()}).
				Debug("live notification not delivered")
		}
	}
	return delivered
}

func live(n Notification) LiveNotification {
	return LiveNotification{
		ID:             n.ID.String(),
		UserID:         n.UserID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		ChannelID:      n.ChannelID,
		ConversationID: n.ConversationID,
		MessageID:      n.MessageID,
		SenderID:       n.SenderID,
	}
}

func senderName(msg Message) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return msg.SenderID
}

// IsNotFound reports whether err means the message's room does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound) || errors.Is(err, ErrConversationNotFound)
}
