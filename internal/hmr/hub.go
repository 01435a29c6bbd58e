package hmr

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"git.home.luguber.info/inful/bundledev/internal/logfields"
	"git.home.luguber.info/inful/bundledev/internal/metrics"
)

const (
	defaultHeartbeat = 30 * time.Second
	clientBuffer     = 8
	wsWriteTimeout   = 5 * time.Second
)

// Hub fans notifications out to connected clients over Server-Sent Events
// (ServeHTTP) and WebSockets (ServeWS). Clients that cannot keep up are
// dropped. A newly connected client first receives the last known hash.
type Hub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*hubClient
	closed   bool
	lastHash string

	recorder  metrics.Recorder
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

type hubClient struct {
	id   int
	ch   chan []byte
	done chan struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithRecorder reports client counts and broadcasts.
func WithRecorder(r metrics.Recorder) HubOption {
	return func(h *Hub) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:   map[int]*hubClient{},
		recorder:  metrics.NoopRecorder{},
		heartbeat: defaultHeartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The development server is local; pages from any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) addClient() (*hubClient, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, "", false
	}
	c := &hubClient{id: h.nextID, ch: make(chan []byte, clientBuffer), done: make(chan struct{})}
	h.nextID++
	h.clients[c.id] = c
	h.recorder.SetHotClients(len(h.clients))
	return c, h.lastHash, true
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
		h.recorder.SetHotClients(len(h.clients))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// LastHash returns the hash of the most recent broadcast.
func (h *Hub) LastHash() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastHash
}

// ServeHTTP implements the SSE endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	client, current, ok := h.addClient()
	if !ok {
		http.Error(w, "hot update channel shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.removeClient(client.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	write := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			slog.Debug("hmr write", logfields.Error(err))
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	initial := ": connected\n\n"
	if current != "" {
		if payload, err := HashNotification(current).Encode(); err == nil {
			initial += "data: " + string(payload) + "\n\n"
		}
	}
	if !write(initial) {
		return
	}

	hb := time.NewTicker(h.heartbeat)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-hb.C:
			if !write(": ping\n\n") {
				return
			}
		case payload := <-client.ch:
			if !write("data: " + string(payload) + "\n\n") {
				return
			}
		}
	}
}

// ServeWS implements the WebSocket endpoint. Messages are the same JSON
// notifications as on the SSE stream; anything the client sends is ignored.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("hmr websocket upgrade failed", logfields.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	client, current, ok := h.addClient()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteTimeout))
		return
	}
	defer h.removeClient(client.id)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(payload []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			slog.Debug("hmr websocket write", logfields.Error(err))
			return false
		}
		return true
	}

	if current != "" {
		if payload, err := HashNotification(current).Encode(); err == nil && !send(payload) {
			return
		}
	}

	for {
		select {
		case <-gone:
			return
		case <-client.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case payload := <-client.ch:
			if !send(payload) {
				return
			}
		}
	}
}

// Broadcast sends n to every client. A hash notification repeating the last
// hash is not re-sent. Clients whose buffers are full are dropped.
func (h *Hub) Broadcast(n Notification) {
	payload, err := n.Encode()
	if err != nil {
		slog.Error("hmr encode notification", logfields.Error(err))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if n.Type == TypeHash && (n.Hash == "" || n.Hash == h.lastHash) {
		h.mu.Unlock()
		return
	}
	if n.Hash != "" {
		h.lastHash = n.Hash
	}
	snapshot := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- payload:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.recorder.IncBroadcast(string(n.Type))
	slog.Debug("hmr broadcast",
		"type", string(n.Type),
		logfields.Hash(n.Hash),
		logfields.Clients(len(snapshot)),
		"dropped", dropped)
}

// Shutdown disconnects all clients and prevents future broadcasts.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*hubClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetHotClients(0)
}
