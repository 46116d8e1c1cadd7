package presence

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type frame struct {
	SessionID string
	Event     string
	Data      json.RawMessage
}

// fakeTransport records frames per session. Sessions are known up front so
// Broadcast can fan out like the hub does.
type fakeTransport struct {
	mu       sync.Mutex
	sessions []string
	rooms    map[string]map[string]bool
	frames   []frame
}

func newFakeTransport(sessions ...string) *fakeTransport {
	return &fakeTransport{sessions: sessions, rooms: make(map[string]map[string]bool)}
}

func (f *fakeTransport) record(sessionID string, payload []byte) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		panic(err)
	}
	f.frames = append(f.frames, frame{SessionID: sessionID, Event: env.Event, Data: env.Data})
}

func (f *fakeTransport) Broadcast(payload []byte, exceptSessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range f.sessions {
		if id == exceptSessionID {
			continue
		}
		f.record(id, payload)
		n++
	}
	return n
}

func (f *fakeTransport) SendToSession(sessionID string, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(sessionID, payload)
	return true
}

func (f *fakeTransport) Subscribe(sessionID, roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[roomID] == nil {
		f.rooms[roomID] = make(map[string]bool)
	}
	f.rooms[roomID][sessionID] = true
	return true
}

func (f *fakeTransport) Unsubscribe(sessionID, roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.rooms[roomID][sessionID] {
		return false
	}
	delete(f.rooms[roomID], sessionID)
	return true
}

func (f *fakeTransport) BroadcastToRoom(roomID string, payload []byte, exceptSessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id := range f.rooms[roomID] {
		if id == exceptSessionID {
			continue
		}
		f.record(id, payload)
		n++
	}
	return n
}

func (f *fakeTransport) framesFor(sessionID, event string) []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []frame
	for _, fr := range f.frames {
		if fr.SessionID == sessionID && fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeTransport) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		if fr.Event == event {
			n++
		}
	}
	return n
}

func quietLogger(t *testing.T) logrus.FieldLogger {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return logger
}
