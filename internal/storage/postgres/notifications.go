package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tyrowin/nexus-realtime/internal/notify"
)

var notificationColumns = []string{
	"id", "user_id", "type", "title", "message", "channel_id", "conversation_id",
	"message_id", "sender_id", "is_read", "created_at",
}

// NotificationStore implements notify.Store.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore returns a store writing through pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// InsertNotifications copies the batch inside one transaction so either every
// row lands or none does.
func (s *NotificationStore) InsertNotifications(ctx context.Context, notifications []notify.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"notifications"}, notificationColumns, pgx.CopyFromRows(rows(notifications)))
		if err != nil {
			return fmt.Errorf("copy notifications: %w", err)
		}
		if int(n) != len(notifications) {
			return fmt.Errorf("copy notifications: wrote %d of %d rows", n, len(notifications))
		}
		return nil
	})
}

func rows(notifications []notify.Notification) [][]any {
	out := make([][]any, len(notifications))
	for i, n := range notifications {
		out[i] = []any{
			n.ID,
			n.UserID,
			string(n.Type),
			n.Title,
			n.Message,
			nullable(n.ChannelID),
			nullable(n.ConversationID),
			n.MessageID,
			n.SenderID,
			n.IsRead,
			n.CreatedAt,
		}
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
