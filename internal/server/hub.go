package server

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/nexus-realtime/internal/presence"
	"github.com/Tyrowin/nexus-realtime/internal/telemetry"
)

// Hub owns every live socket session. Register, unregister and inbound client
// events are serialised through Run; the delivery primitives are lock
// protected and may be called from any goroutine.
type Hub struct {
	clients  map[*Client]bool
	sessions map[string]*Client
	rooms    map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	presence *presence.Broadcaster
	gateway  *presence.Gateway
	log      logrus.FieldLogger
	metrics  *telemetry.Metrics
}

// NewHub creates a Hub that records presence in registry and active rooms in
// rooms. metrics may be nil.
func NewHub(registry *presence.Registry, rooms *presence.ActiveRooms, log logrus.FieldLogger, metrics *telemetry.Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[string]*Client),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
		metrics:    metrics,
	}
	h.presence = presence.NewBroadcaster(registry, h, log)
	h.gateway = presence.NewGateway(rooms, h, log)
	return h
}

// Presence returns the broadcaster answering presence queries.
func (h *Hub) Presence() *presence.Broadcaster {
	return h.presence
}

// Register queues client for registration. It returns false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister queues client for removal.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) dispatch(ev inboundEvent) {
	select {
	case h.inbound <- ev:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.inbound:
			h.handleInbound(ev)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	h.sessions[client.session.ID] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.SessionOpened(h.ctx)
	h.log.WithFields(logrus.Fields{
		"user_id":    client.session.UserID,
		"session_id": client.session.ID,
		"addr":       client.addr,
		"clients":    clientCount,
	}).Info("client registered")

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	if h.presence.Connect(client.session) {
		h.metrics.PresenceTransition(h.ctx, true)
	}
}

// removeClient leaves every joined room, releases the session and then runs
// the presence disconnect.
func (h *Hub) removeClient(client *Client) {
	rooms, ok := h.detach(client)
	if !ok {
		return
	}

	for _, roomID := range rooms {
		if err := h.gateway.LeaveRoom(client.session, roomID); err != nil {
			h.log.WithError(err).WithField("room_id", roomID).Debug("leave room on disconnect")
		}
	}

	h.metrics.SessionClosed(h.ctx)
	if h.presence.Disconnect(client.session) {
		h.metrics.PresenceTransition(h.ctx, false)
	}

	h.log.WithFields(logrus.Fields{
		"user_id":    client.session.UserID,
		"session_id": client.session.ID,
		"addr":       client.addr,
	}).Info("client unregistered")
}

// detach drops client from every index and closes its send channel. It
// returns the rooms the client had joined.
func (h *Hub) detach(client *Client) ([]string, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return nil, false
	}
	delete(h.clients, client)
	if h.sessions[client.session.ID] == client {
		delete(h.sessions, client.session.ID)
	}

	rooms := make([]string, 0, len(client.rooms))
	for roomID := range client.rooms {
		h.leaveLocked(client, roomID)
		rooms = append(rooms, roomID)
	}

	client.closed = true
	close(client.send)
	return rooms, true
}

func (h *Hub) handleInbound(ev inboundEvent) {
	client := ev.client
	if !h.isRegistered(client) {
		return
	}

	entry := h.log.WithFields(logrus.Fields{
		"event":      ev.msg.Event,
		"session_id": client.session.ID,
	})

	if ev.msg.Event == eventRequestOnlineUsers {
		h.presence.SendOnlineUsers(client.session.ID)
		return
	}

	roomID, err := parseRoomID(ev.msg.Data)
	if err != nil {
		entry.WithError(err).Debug("dropping client event with invalid payload")
		return
	}

	switch ev.msg.Event {
	case eventJoinRoom:
		err = h.gateway.JoinRoom(client.session, roomID)
	case eventLeaveRoom:
		err = h.gateway.LeaveRoom(client.session, roomID)
	case eventStartTyping:
		_, err = h.gateway.StartTyping(client.session, roomID)
	case eventUserStoppedTyping:
		_, err = h.gateway.StopTyping(client.session, roomID)
	default:
		entry.Debug("dropping unknown client event")
		return
	}
	if err != nil {
		entry.WithError(err).Warn("client event failed")
	}
}

func (h *Hub) isRegistered(client *Client) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.clients[client]
}

// SendToSession writes payload to one session.
func (h *Hub) SendToSession(sessionID string, payload []byte) bool {
	h.mutex.RLock()
	client, ok := h.sessions[sessionID]
	sent := ok && h.sendLocked(client, payload)
	h.mutex.RUnlock()

	if ok && !sent {
		h.evict(client)
	}
	return sent
}

// Broadcast writes payload to every session except exceptSessionID.
func (h *Hub) Broadcast(payload []byte, exceptSessionID string) int {
	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	reached, failed := h.sendAllLocked(targets, payload, exceptSessionID)
	h.mutex.RUnlock()

	h.evictAll(failed)
	return reached
}

// BroadcastToRoom writes payload to every subscriber of roomID except
// exceptSessionID.
func (h *Hub) BroadcastToRoom(roomID string, payload []byte, exceptSessionID string) int {
	h.mutex.RLock()
	members := h.rooms[roomID]
	targets := make([]*Client, 0, len(members))
	for client := range members {
		targets = append(targets, client)
	}
	reached, failed := h.sendAllLocked(targets, payload, exceptSessionID)
	h.mutex.RUnlock()

	h.evictAll(failed)
	return reached
}

// Subscribe adds the session to the room's broadcast group.
func (h *Hub) Subscribe(sessionID, roomID string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.sessions[sessionID]
	if !ok {
		return false
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[client] = struct{}{}
	client.rooms[roomID] = struct{}{}
	return true
}

// Unsubscribe removes the session from the room's broadcast group.
func (h *Hub) Unsubscribe(sessionID, roomID string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.sessions[sessionID]
	if !ok {
		return false
	}
	if _, joined := client.rooms[roomID]; !joined {
		return false
	}
	h.leaveLocked(client, roomID)
	return true
}

func (h *Hub) leaveLocked(client *Client, roomID string) {
	delete(client.rooms, roomID)
	if members, ok := h.rooms[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// SessionCount returns the number of registered sessions.
func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// sendAllLocked requires h.mutex to be held for reading.
func (h *Hub) sendAllLocked(targets []*Client, payload []byte, exceptSessionID string) (int, []*Client) {
	reached := 0
	var failed []*Client
	for _, client := range targets {
		if exceptSessionID != "" && client.session.ID == exceptSessionID {
			continue
		}
		if h.sendLocked(client, payload) {
			reached++
		} else {
			failed = append(failed, client)
		}
	}
	return reached, failed
}

// sendLocked requires h.mutex to be held for reading so send cannot be closed
// concurrently.
func (h *Hub) sendLocked(client *Client, payload []byte) bool {
	if client.closed {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) evictAll(clients []*Client) {
	for _, client := range clients {
		h.evict(client)
	}
}

// evict disconnects a session whose send buffer is full. Cleanup then runs
// through the normal unregister path so presence transitions are emitted.
func (h *Hub) evict(client *Client) {
	client.evictOnce.Do(func() {
		h.log.WithFields(logrus.Fields{
			"session_id": client.session.ID,
			"addr":       client.addr,
		}).Warn("client removed due to full send buffer")

		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.WithError(err).Debug("close evicted connection")
			}
			return
		}
		go h.Unregister(client)
	})
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.WithError(err).WithField("addr", client.addr).Warn("error closing client connection")
			}
		}
	}

	h.log.WithField("clients", len(clients)).Info("closed client connections")
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
