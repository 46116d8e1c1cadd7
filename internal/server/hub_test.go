package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexus-realtime/internal/presence"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type hubFixture struct {
	hub      *Hub
	registry *presence.Registry
	rooms    *presence.ActiveRooms
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	registry := presence.NewRegistry()
	rooms := presence.NewActiveRooms()
	hub := NewHub(registry, rooms, log, nil)
	StartHub(hub)
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })
	return &hubFixture{hub: hub, registry: registry, rooms: rooms}
}

// connect registers a connection-less client and waits for its onlineUsers
// snapshot, which marks registration as complete.
func (f *hubFixture) connect(t *testing.T, sessionID, userID string) *Client {
	t.Helper()
	c := NewClient(nil, f.hub, presence.Session{ID: sessionID, UserID: userID, Name: userID + "-name"}, "test", *NewConfig())
	require.True(t, f.hub.Register(c))
	got := nextFrame(t, c)
	require.Equal(t, presence.EventOnlineUsers, got.Event)
	return c
}

func nextFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case payload, ok := <-c.GetSendChan():
		require.True(t, ok, "send channel closed")
		var f frame
		require.NoError(t, json.Unmarshal(payload, &f))
		return f
	case <-time.After(time.Second):
		t.Fatalf("no frame for session %s", c.session.ID)
		return frame{}
	}
}

func expectNoFrame(t *testing.T, c *Client, wait time.Duration) {
	t.Helper()
	select {
	case payload, ok := <-c.GetSendChan():
		if ok {
			t.Fatalf("unexpected frame for session %s: %s", c.session.ID, payload)
		}
	case <-time.After(wait):
	}
}

func TestHub_PresenceTransitions(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)

	alice1 := f.connect(t, "a1", "alice")
	bob := f.connect(t, "b1", "bob")

	got := nextFrame(t, alice1)
	req.Equal(presence.EventUserOnline, got.Event)
	req.JSONEq(`{"userId":"bob","isOnline":true}`, string(got.Data))

	alice2 := f.connect(t, "a2", "alice")
	expectNoFrame(t, bob, 100*time.Millisecond)
	req.Equal(3, f.hub.SessionCount())

	f.hub.Unregister(alice1)
	expectNoFrame(t, bob, 100*time.Millisecond)
	req.True(f.registry.IsOnline("alice"))

	f.hub.Unregister(alice2)
	got = nextFrame(t, bob)
	req.Equal(presence.EventUserOffline, got.Event)
	req.JSONEq(`{"userId":"alice","isOnline":false}`, string(got.Data))
	req.False(f.registry.IsOnline("alice"))
}

func TestHub_SnapshotListsOnlineUsers(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)

	f.connect(t, "a1", "alice")
	bob := NewClient(nil, f.hub, presence.Session{ID: "b1", UserID: "bob"}, "test", *NewConfig())
	req.True(f.hub.Register(bob))

	got := nextFrame(t, bob)
	req.Equal(presence.EventOnlineUsers, got.Event)
	req.JSONEq(`{"users":["alice","bob"]}`, string(got.Data))

	f.hub.dispatch(inboundEvent{client: bob, msg: inboundMessage{Event: eventRequestOnlineUsers}})
	got = nextFrame(t, bob)
	req.Equal(presence.EventOnlineUsers, got.Event)
}

func TestHub_RoomEvents(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)

	alice := f.connect(t, "a1", "alice")
	bob := f.connect(t, "b1", "bob")
	carol := f.connect(t, "c1", "carol")
	nextFrame(t, alice) // bob online
	nextFrame(t, alice) // carol online
	nextFrame(t, bob)   // carol online

	f.hub.dispatch(inboundEvent{client: alice, msg: inboundMessage{Event: eventJoinRoom, Data: json.RawMessage(`"general"`)}})
	f.hub.dispatch(inboundEvent{client: bob, msg: inboundMessage{Event: eventJoinRoom, Data: json.RawMessage(`{"roomId":"general"}`)}})
	f.hub.dispatch(inboundEvent{client: alice, msg: inboundMessage{Event: eventStartTyping, Data: json.RawMessage(`"general"`)}})

	got := nextFrame(t, bob)
	req.Equal(presence.EventTyping, got.Event)
	req.JSONEq(`{"userId":"alice","username":"alice-name","roomId":"general"}`, string(got.Data))
	expectNoFrame(t, alice, 100*time.Millisecond)
	expectNoFrame(t, carol, 50*time.Millisecond)

	f.hub.dispatch(inboundEvent{client: alice, msg: inboundMessage{Event: eventUserStoppedTyping, Data: json.RawMessage(`{"roomId":"general"}`)}})
	got = nextFrame(t, bob)
	req.Equal(presence.EventUserStoppedTyping, got.Event)
	req.JSONEq(`{"userId":"alice"}`, string(got.Data))

	room, ok := f.rooms.ActiveRoomOf("bob")
	req.True(ok)
	req.Equal("general", room)

	f.hub.dispatch(inboundEvent{client: bob, msg: inboundMessage{Event: eventLeaveRoom, Data: json.RawMessage(`"general"`)}})
	f.hub.dispatch(inboundEvent{client: alice, msg: inboundMessage{Event: eventStartTyping, Data: json.RawMessage(`"general"`)}})
	expectNoFrame(t, bob, 100*time.Millisecond)
	_, ok = f.rooms.ActiveRoomOf("bob")
	req.False(ok)
}

func TestHub_InvalidEventsAreDropped(t *testing.T) {
	f := newHubFixture(t)
	alice := f.connect(t, "a1", "alice")

	f.hub.dispatch(inboundEvent{client: alice, msg: inboundMessage{Event: "launchRockets", Data: json.RawMessage(`"x"`)}})
	f.hub.dispatch(inboundEvent{client: alice, msg: inboundMessage{Event: eventJoinRoom}})
	f.hub.dispatch(inboundEvent{client: alice, msg: inboundMessage{Event: eventJoinRoom, Data: json.RawMessage(`{"roomId":"  "}`)}})
	f.hub.dispatch(inboundEvent{client: alice, msg: inboundMessage{Event: eventRequestOnlineUsers}})

	// The snapshot proves the loop is still serving events after the bad ones.
	got := nextFrame(t, alice)
	require.Equal(t, presence.EventOnlineUsers, got.Event)
	_, ok := f.rooms.ActiveRoomOf("alice")
	require.False(t, ok)
}

func TestHub_DisconnectLeavesRooms(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)

	alice := f.connect(t, "a1", "alice")
	bob := f.connect(t, "b1", "bob")
	nextFrame(t, alice)

	f.hub.dispatch(inboundEvent{client: alice, msg: inboundMessage{Event: eventJoinRoom, Data: json.RawMessage(`"general"`)}})
	f.hub.dispatch(inboundEvent{client: bob, msg: inboundMessage{Event: eventJoinRoom, Data: json.RawMessage(`"general"`)}})
	f.hub.Unregister(alice)

	got := nextFrame(t, bob)
	req.Equal(presence.EventUserOffline, got.Event)
	_, ok := f.rooms.ActiveRoomOf("alice")
	req.False(ok)

	req.Equal(0, f.hub.BroadcastToRoom("general", []byte(`{}`), "b1"))
	req.Equal(1, f.hub.BroadcastToRoom("general", []byte(`{}`), ""))
}

func TestHub_DeliveryPrimitives(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)

	alice := f.connect(t, "a1", "alice")
	bob := f.connect(t, "b1", "bob")
	nextFrame(t, alice)

	req.True(f.hub.SendToSession("b1", []byte(`{"event":"ping"}`)))
	req.Equal("ping", nextFrame(t, bob).Event)
	req.False(f.hub.SendToSession("nobody", []byte(`{}`)))

	req.Equal(1, f.hub.Broadcast([]byte(`{"event":"all"}`), "a1"))
	req.Equal("all", nextFrame(t, bob).Event)
	expectNoFrame(t, alice, 50*time.Millisecond)

	req.True(f.hub.Subscribe("a1", "r"))
	req.False(f.hub.Subscribe("nobody", "r"))
	req.True(f.hub.Unsubscribe("a1", "r"))
	req.False(f.hub.Unsubscribe("a1", "r"))
}

func TestHub_FullBufferEvictsSession(t *testing.T) {
	req := require.New(t)
	f := newHubFixture(t)

	alice := f.connect(t, "a1", "alice")
	f.connect(t, "b1", "bob")
	nextFrame(t, alice)

	// Nothing drains b1, so its buffer eventually rejects a frame.
	for i := 0; i < sendBufferSize; i++ {
		f.hub.SendToSession("b1", []byte(`{"event":"fill"}`))
	}
	req.False(f.hub.SendToSession("b1", []byte(`{"event":"overflow"}`)))

	req.Eventually(func() bool { return !f.registry.IsOnline("bob") }, time.Second, 10*time.Millisecond)
	got := nextFrame(t, alice)
	req.Equal(presence.EventUserOffline, got.Event)
	req.JSONEq(`{"userId":"bob","isOnline":false}`, string(got.Data))
	req.Equal(1, f.hub.SessionCount())
}

func TestHub_ShutdownRejectsRegistration(t *testing.T) {
	log, _ := test.NewNullLogger()
	hub := NewHub(presence.NewRegistry(), presence.NewActiveRooms(), log, nil)
	StartHub(hub)
	require.NoError(t, hub.Shutdown(time.Second))

	c := NewClient(nil, hub, presence.Session{ID: "s", UserID: "u"}, "test", *NewConfig())
	require.False(t, hub.Register(c))
}
