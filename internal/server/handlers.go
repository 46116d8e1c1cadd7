package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/nexus-realtime/internal/auth"
	"github.com/Tyrowin/nexus-realtime/internal/events"
	"github.com/Tyrowin/nexus-realtime/internal/notify"
	"github.com/Tyrowin/nexus-realtime/internal/presence"
)

const (
	maxHookBodyBytes = 1 << 20
	hookTimeout      = 10 * time.Second
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Hub      *Hub
	Verifier *auth.Verifier
	// Hook receives POST /internal/messages; nil disables the route.
	Hook   notify.Hook
	Config Config
	Log    logrus.FieldLogger
}

type handlers struct {
	hub      *Hub
	verifier *auth.Verifier
	hook     notify.Hook
	cfg      Config
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func newHandlers(deps Deps) *handlers {
	cfg := sanitizeConfig(deps.Config)
	origins := newOriginPolicy(cfg.AllowedOrigins, deps.Log)
	return &handlers{
		hub:      deps.Hub,
		verifier: deps.Verifier,
		hook:     deps.Hook,
		cfg:      cfg,
		log:      deps.Log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
}

// webSocket authenticates the handshake, upgrades the connection and registers
// the new session with the hub, which launches the pumps.
func (h *handlers) webSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	identity, err := h.verifier.Authenticate(r)
	if err != nil {
		h.log.WithError(err).WithField("addr", r.RemoteAddr).Info("rejected unauthenticated WebSocket handshake")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	session := presence.Session{
		ID:     uuid.NewString(),
		UserID: identity.UserID,
		Name:   identity.Name,
	}
	client := NewClient(conn, h.hub, session, r.RemoteAddr, h.cfg)
	if !h.hub.Register(client) {
		_ = conn.Close()
	}
}

// presenceBatch answers GET /api/presence?userIds=a,b,c.
func (h *handlers) presenceBatch(w http.ResponseWriter, r *http.Request) {
	ids := presence.ParseUserIDs(r.URL.Query().Get("userIds"))
	h.writeJSON(w, http.StatusOK, h.hub.Presence().UsersPresence(ids), true)
}

// presenceOne answers GET /api/presence/{userId}.
func (h *handlers) presenceOne(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.hub.Presence().UserPresence(r.PathValue("userId")), true)
}

type healthStatus struct {
	Status      string `json:"status"`
	OnlineUsers int    `json:"onlineUsers"`
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthStatus{Status: "ok", OnlineUsers: h.hub.Presence().OnlineCount()}, false)
}

// messageCreated is the post-commit hook of the message service. The fan-out
// runs before the response on a context detached from the caller, so a caller
// that gives up does not abort the notification insert. Its failures never
// change the status code.
func (h *handlers) messageCreated(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Internal-Token")
	if h.cfg.HookToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.HookToken)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxHookBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	msg, err := events.Decode(data)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), hookTimeout)
	defer cancel()
	h.hook.OnMessageCreated(ctx, msg)
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, body any, noCache bool) {
	w.Header().Set("Content-Type", "application/json")
	if noCache {
		setNoCache(w.Header())
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.WithError(err).Warn("error writing JSON response")
	}
}

func setNoCache(header http.Header) {
	header.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Nexus realtime gateway is running!")
}

// TestPageHandler serves an HTML page for manual checks of the socket events.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Nexus Realtime Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Nexus Realtime Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="tokenInput" placeholder="JWT token">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="roomInput" placeholder="Room id">
        <button onclick="send('joinRoom', roomId())">Join</button>
        <button onclick="send('leaveRoom', roomId())">Leave</button>
        <button onclick="send('startTyping', roomId())">Typing</button>
        <button onclick="send('userStoppedTyping', {roomId: roomId()})">Stop typing</button>
        <button onclick="send('requestOnlineUsers')">Online users</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        const eventsDiv = document.getElementById('events');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function roomId() { return document.getElementById('roomInput').value.trim(); }

        function addLine(text) {
            const line = document.createElement('div');
            line.textContent = text;
            eventsDiv.appendChild(line);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const token = encodeURIComponent(document.getElementById('tokenInput').value.trim());
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws?token=' + token);
            ws.onopen = function() { addLine('-- connected'); updateStatus(true); };
            ws.onmessage = function(event) { addLine('<- ' + event.data); };
            ws.onclose = function() { addLine('-- closed'); updateStatus(false); ws = null; };
            ws.onerror = function() { addLine('-- error'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function send(event, data) {
            if (!ws || ws.readyState !== WebSocket.OPEN) { return; }
            const frame = JSON.stringify(data === undefined ? {event: event} : {event: event, data: data});
            ws.send(frame);
            addLine('-> ' + frame);
        }
    </script>
</body>
</html>`
