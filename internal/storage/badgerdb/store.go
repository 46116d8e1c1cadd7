// Package badgerdb is an embedded store for local runs: it keeps directory
// records (channels, server members, conversations) and notification records
// in BadgerDB.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/nexus-realtime/internal/notify"
)

const (
	channelPrefix      = "channel:"
	memberPrefix       = "member:"
	conversationPrefix = "conversation:"
	notificationPrefix = "notification:"

	// keySep ends an id segment in composite keys. Ids never contain NUL,
	// so a prefix scan cannot run into a longer id.
	keySep = "\x00"
)

// Store implements notify.Directory and notify.Store on top of BadgerDB.
type Store struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// Open opens (or creates) a Badger database at path.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return New(db, log), nil
}

// New wraps an already opened database.
func New(db *badger.DB, log logrus.FieldLogger) *Store {
	return &Store{db: db, log: log}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type channelRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ServerID string `json:"serverId"`
}

type conversationRecord struct {
	ID          string `json:"id"`
	MemberOneID string `json:"memberOneId"`
	MemberTwoID string `json:"memberTwoId"`
}

// PutChannel stores channel metadata.
func (s *Store) PutChannel(c notify.Channel) error {
	return s.put(channelPrefix+c.ID, channelRecord{ID: c.ID, Name: c.Name, ServerID: c.ServerID})
}

// PutMember adds userID to the server's member list.
func (s *Store) PutMember(serverID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memberKey(serverID, userID), nil)
	})
}

// PutConversation stores a two-party conversation.
func (s *Store) PutConversation(c notify.Conversation) error {
	return s.put(conversationPrefix+c.ID, conversationRecord{ID: c.ID, MemberOneID: c.MemberOneID, MemberTwoID: c.MemberTwoID})
}

// Channel returns the channel or notify.ErrChannelNotFound.
func (s *Store) Channel(_ context.Context, channelID string) (notify.Channel, error) {
	var rec channelRecord
	if err := s.get(channelPrefix+channelID, &rec); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notify.Channel{}, notify.ErrChannelNotFound
		}
		return notify.Channel{}, err
	}
	return notify.Channel{ID: rec.ID, Name: rec.Name, ServerID: rec.ServerID}, nil
}

// ServerMembers lists the user ids of the server's members with a prefix scan.
func (s *Store) ServerMembers(_ context.Context, serverID string) ([]string, error) {
	prefix := []byte(memberPrefix + serverID + keySep)
	var members []string
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			members = append(members, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return members, err
}

// Conversation returns the conversation or notify.ErrConversationNotFound.
func (s *Store) Conversation(_ context.Context, conversationID string) (notify.Conversation, error) {
	var rec conversationRecord
	if err := s.get(conversationPrefix+conversationID, &rec); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notify.Conversation{}, notify.ErrConversationNotFound
		}
		return notify.Conversation{}, err
	}
	return notify.Conversation{ID: rec.ID, MemberOneID: rec.MemberOneID, MemberTwoID: rec.MemberTwoID}, nil
}

// InsertNotifications writes the batch in a single transaction.
// The key is "notification:{user}\x00{created_at_padded}:{id}" so a user's
// notifications sort chronologically.
func (s *Store) InsertNotifications(_ context.Context, notifications []notify.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, n := range notifications {
			value, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := txn.Set(notificationKey(n), value); err != nil {
				return fmt.Errorf("stage notification %s: %w", n.ID, err)
			}
		}
		return nil
	})
}

// ListNotifications returns the user's notifications, newest first.
func (s *Store) ListNotifications(_ context.Context, userID string) ([]notify.Notification, error) {
	prefix := []byte(notificationPrefix + userID + keySep)
	var out []notify.Notification
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var n notify.Notification
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &n)
			}); err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

func (s *Store) put(key string, v any) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), value)
}

func (s *Store) get(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, v)
		})
	})
}

func memberKey(serverID, userID string) []byte {
	return []byte(memberPrefix + serverID + keySep + userID)
}

func notificationKey(n notify.Notification) []byte {
	return []byte(fmt.Sprintf("%s%s%s%019d:%s", notificationPrefix, n.UserID, keySep, n.CreatedAt.UnixNano(), n.ID))
}

type memberRecord struct {
	ServerID string `json:"serverId"`
	UserID   string `json:"userId"`
}

// seedData is the JSON document accepted by Seed.
type seedData struct {
	Channels      []channelRecord      `json:"channels"`
	Members       []memberRecord       `json:"members"`
	Conversations []conversationRecord `json:"conversations"`
}

// Seed loads directory records from a JSON document shaped like seedData in
// a single transaction.
func (s *Store) Seed(data []byte) error {
	var seed seedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, c := range seed.Channels {
			if c.ID == "" || c.ServerID == "" {
				return fmt.Errorf("seed channel %q: id and serverId are required", c.ID)
			}
			if err := setJSON(txn, channelPrefix+c.ID, c); err != nil {
				return err
			}
		}
		for _, m := range seed.Members {
			if m.ServerID == "" || m.UserID == "" {
				return fmt.Errorf("seed member %q/%q: serverId and userId are required", m.ServerID, m.UserID)
			}
			if err := txn.Set(memberKey(m.ServerID, m.UserID), nil); err != nil {
				return err
			}
		}
		for _, c := range seed.Conversations {
			if c.ID == "" || c.MemberOneID == "" || c.MemberTwoID == "" {
				return fmt.Errorf("seed conversation %q: id and both members are required", c.ID)
			}
			if err := setJSON(txn, conversationPrefix+c.ID, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"channels":      len(seed.Channels),
		"members":       len(seed.Members),
		"conversations": len(seed.Conversations),
	}).Debug("directory seeded")
	return nil
}
