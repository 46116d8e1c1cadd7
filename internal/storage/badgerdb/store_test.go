package badgerdb

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexus-realtime/internal/notify"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	logger, _ := test.NewNullLogger()
	return New(db, logger)
}

func TestStore_Directory(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	ctx := context.Background()

	req.NoError(s.PutChannel(notify.Channel{ID: "general", Name: "general", ServerID: "srv"}))
	req.NoError(s.PutMember("srv", "alice"))
	req.NoError(s.PutMember("srv", "bob"))
	req.NoError(s.PutMember("other", "carol"))
	req.NoError(s.PutConversation(notify.Conversation{ID: "dm", MemberOneID: "alice", MemberTwoID: "bob"}))

	channel, err := s.Channel(ctx, "general")
	req.NoError(err)
	req.Equal(notify.Channel{ID: "general", Name: "general", ServerID: "srv"}, channel)

	members, err := s.ServerMembers(ctx, "srv")
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, members)

	conversation, err := s.Conversation(ctx, "dm")
	req.NoError(err)
	req.Equal("bob", conversation.MemberTwoID)

	_, err = s.Channel(ctx, "missing")
	req.ErrorIs(err, notify.ErrChannelNotFound)
	_, err = s.Conversation(ctx, "missing")
	req.ErrorIs(err, notify.ErrConversationNotFound)
}

func TestStore_InsertAndListNotifications(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	batch := []notify.Notification{
		{ID: uuid.New(), UserID: "alice", Type: notify.ChannelMessage, Title: "t1", Message: "m1", ChannelID: "general", MessageID: "1", SenderID: "bob", CreatedAt: at},
		{ID: uuid.New(), UserID: "alice", Type: notify.ChannelMessage, Title: "t2", Message: "m2", ChannelID: "general", MessageID: "2", SenderID: "bob", CreatedAt: at.Add(time.Minute)},
		{ID: uuid.New(), UserID: "carol", Type: notify.DirectMessage, Title: "t3", Message: "m3", ConversationID: "dm", MessageID: "3", SenderID: "bob", CreatedAt: at},
	}
	req.NoError(s.InsertNotifications(ctx, batch))
	req.NoError(s.InsertNotifications(ctx, nil))

	alice, err := s.ListNotifications(ctx, "alice")
	req.NoError(err)
	req.Len(alice, 2)
	req.Equal("2", alice[0].MessageID, "newest first")
	req.Equal(batch[1], alice[0])
	req.False(alice[1].IsRead)

	carol, err := s.ListNotifications(ctx, "carol")
	req.NoError(err)
	req.Equal([]notify.Notification{batch[2]}, carol)

	none, err := s.ListNotifications(ctx, "dave")
	req.NoError(err)
	req.Empty(none)
}

func TestStore_ColonIDsStayInScope(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	req.NoError(s.PutMember("srv", "alice"))
	req.NoError(s.PutMember("srv:eu", "mallory"))

	members, err := s.ServerMembers(ctx, "srv")
	req.NoError(err)
	req.Equal([]string{"alice"}, members)

	members, err = s.ServerMembers(ctx, "srv:eu")
	req.NoError(err)
	req.Equal([]string{"mallory"}, members)

	req.NoError(s.InsertNotifications(ctx, []notify.Notification{
		{ID: uuid.New(), UserID: "u:1", Type: notify.DirectMessage, ConversationID: "dm", MessageID: "1", SenderID: "bob", CreatedAt: at},
		{ID: uuid.New(), UserID: "u", Type: notify.DirectMessage, ConversationID: "dm", MessageID: "2", SenderID: "bob", CreatedAt: at},
	}))

	mine, err := s.ListNotifications(ctx, "u")
	req.NoError(err)
	req.Len(mine, 1)
	req.Equal("2", mine[0].MessageID)

	theirs, err := s.ListNotifications(ctx, "u:1")
	req.NoError(err)
	req.Len(theirs, 1)
	req.Equal("1", theirs[0].MessageID)
}

func TestStore_Seed(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	ctx := context.Background()

	req.NoError(s.Seed([]byte(`{
		"channels": [{"id": "general", "serverId": "srv", "name": "General Chat"}],
		"members": [{"serverId": "srv", "userId": "alice"}, {"serverId": "srv", "userId": "bob"}],
		"conversations": [{"id": "dm", "memberOneId": "alice", "memberTwoId": "bob"}]
	}`)))

	channel, err := s.Channel(ctx, "general")
	req.NoError(err)
	req.Equal("General Chat", channel.Name)

	members, err := s.ServerMembers(ctx, "srv")
	req.NoError(err)
	req.Len(members, 2)

	conversation, err := s.Conversation(ctx, "dm")
	req.NoError(err)
	req.Equal("alice", conversation.MemberOneID)
}

func TestStore_SeedRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `channel general srv general`},
		{"channel without server", `{"channels": [{"id": "general"}]}`},
		{"member without user", `{"members": [{"serverId": "srv"}]}`},
		{"conversation with one member", `{"conversations": [{"id": "dm", "memberOneId": "alice"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openStore(t)
			require.Error(t, s.Seed([]byte(tt.data)))
		})
	}
}

func TestStore_SeedIsAtomic(t *testing.T) {
	req := require.New(t)
	s := openStore(t)

	req.Error(s.Seed([]byte(`{
		"channels": [{"id": "general", "serverId": "srv", "name": "general"}],
		"members": [{"serverId": "srv", "userId": ""}]
	}`)))

	_, err := s.Channel(context.Background(), "general")
	req.ErrorIs(err, notify.ErrChannelNotFound)
}

func TestStore_FeedsEngine(t *testing.T) {
	req := require.New(t)
	s := openStore(t)
	req.NoError(s.Seed([]byte(`{
		"channels": [{"id": "general", "serverId": "srv", "name": "general"}],
		"members": [{"serverId": "srv", "userId": "sam"}, {"serverId": "srv", "userId": "ada"}]
	}`)))

	logger, _ := test.NewNullLogger()
	engine := notify.NewEngine(notify.Deps{
		Directory: s,
		Store:     s,
		Presence:  offline{},
		Rooms:     offline{},
		Pusher:    offline{},
		Log:       logger,
	})

	result, err := engine.Dispatch(context.Background(), notify.Message{
		ID: "m1", Content: "hi", SenderID: "sam", SenderName: "Sam", ChannelID: "general",
	})
	req.NoError(err)
	req.Equal([]string{"ada"}, result.Recipients())

	stored, err := s.ListNotifications(context.Background(), "ada")
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal("Sam: hi", stored[0].Message)
}

type offline struct{}

func (offline) IsOnline(string) bool { return false }
func (offline) SessionsOf(string) []string { return nil }
func (offline) ActiveRoomOf(string) (string, bool) { return "", false }
func (offline) SendToSession(string, []byte) bool { return false }
