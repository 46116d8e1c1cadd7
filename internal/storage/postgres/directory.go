package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tyrowin/nexus-realtime/internal/notify"
)

const (
	selectChannel       = `SELECT id, name, server_id FROM channels WHERE id = $1`
	selectServerMembers = `SELECT user_id FROM members WHERE server_id = $1`
	selectConversation  = `SELECT id, member_one_id, member_two_id FROM conversations WHERE id = $1`
)

// Directory implements notify.Directory.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory returns a directory reading through pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// Channel returns the channel or notify.ErrChannelNotFound.
func (d *Directory) Channel(ctx context.Context, channelID string) (notify.Channel, error) {
	var c notify.Channel
	err := d.pool.QueryRow(ctx, selectChannel, channelID).Scan(&c.ID, &c.Name, &c.ServerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return notify.Channel{}, notify.ErrChannelNotFound
	}
	return c, err
}

// ServerMembers returns the user ids of every member of the server.
func (d *Directory) ServerMembers(ctx context.Context, serverID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, selectServerMembers, serverID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Conversation returns the conversation or notify.ErrConversationNotFound.
func (d *Directory) Conversation(ctx context.Context, conversationID string) (notify.Conversation, error) {
	var c notify.Conversation
	err := d.pool.QueryRow(ctx, selectConversation, conversationID).Scan(&c.ID, &c.MemberOneID, &c.MemberTwoID)
	if errors.Is(err, pgx.ErrNoRows) {
		return notify.Conversation{}, notify.ErrConversationNotFound
	}
	return c, err
}
