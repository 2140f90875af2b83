package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/flood-monitor/internal/models"
	"github.com/afroash/flood-monitor/internal/observability"
)

// Constants for WebSocket timeouts
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendQueueSize  = 16
)

// Hub manages dashboard WebSocket connections and fans out updates
type Hub struct {
	upgrader       websocket.Upgrader
	authToken      string
	allowedOrigins []string
	logger         zerolog.Logger
	metrics        *observability.Metrics
	snapshot       func() *models.Message
	started        time.Time

	mutex   sync.RWMutex
	clients map[*dashboardClient]struct{}
	closed  bool
}

// dashboardClient is one connected browser
type dashboardClient struct {
	conn        *websocket.Conn
	send        chan []byte
	remoteAddr  string
	connectedAt time.Time
}

// ClientInfo describes a connected dashboard
type ClientInfo struct {
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	QueueLength int       `json:"queue_length"`
}

// NewHub creates a new WebSocket hub
func NewHub(authToken string, logger zerolog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		authToken:      authToken,
		allowedOrigins: allowedOrigins,
		logger:         logger.With().Str("component", "hub").Logger(),
		started:        time.Now(),
		clients:        make(map[*dashboardClient]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// SetSnapshotFunc sets the source of the message sent to each new client
func (h *Hub) SetSnapshotFunc(fn func() *models.Message) {
	h.snapshot = fn
}

// SetMetrics enables the connected-clients gauge
func (h *Hub) SetMetrics(metrics *observability.Metrics) {
	h.metrics = metrics
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles WebSocket connection requests
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !authorized(r, h.authToken, true) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	c := &dashboardClient{
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: time.Now(),
	}
	if !h.register(c) {
		conn.Close()
		return
	}

	if h.snapshot != nil {
		if msg := h.snapshot(); msg != nil {
			h.sendTo(c, msg)
		}
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *dashboardClient) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.updateGauge()
	h.logger.Info().
		Str("remote_addr", c.remoteAddr).
		Int("clients", len(h.clients)).
		Msg("Dashboard connected")
	return true
}

// remove unregisters a client and closes its send queue, which ends its
// write pump. Safe to call more than once.
func (h *Hub) remove(c *dashboardClient, reason string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.updateGauge()
	h.logger.Info().
		Str("remote_addr", c.remoteAddr).
		Str("reason", reason).
		Int("clients", len(h.clients)).
		Msg("Dashboard disconnected")
}

// updateGauge must be called with mutex held
func (h *Hub) updateGauge() {
	if h.metrics != nil {
		h.metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
}

// readPump discards client messages and keeps the read deadline moving on pongs
func (h *Hub) readPump(c *dashboardClient) {
	defer func() {
		h.remove(c, "closed")
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("remote_addr", c.remoteAddr).Msg("WebSocket error")
			}
			return
		}
	}
}

// writePump is the only writer on the connection
func (h *Hub) writePump(c *dashboardClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug().Err(err).Str("remote_addr", c.remoteAddr).Msg("Write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast queues msg for every client and returns how many accepted it.
// Clients whose queue is full are disconnected.
func (h *Hub) Broadcast(msg *models.Message) int {
	data, err := encodeMessage(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode broadcast")
		return 0
	}

	var slow []*dashboardClient
	delivered := 0

	h.mutex.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mutex.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("remote_addr", c.remoteAddr).Msg("Dropping slow dashboard client")
		h.remove(c, "slow consumer")
	}
	return delivered
}

// sendTo queues a message for a single client
func (h *Hub) sendTo(c *dashboardClient, msg *models.Message) {
	data, err := encodeMessage(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode message")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// RunHeartbeat broadcasts a heartbeat every interval until ctx is done
func (h *Hub) RunHeartbeat(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msg, err := models.NewMessage(models.MessageTypeHeartbeat, models.HeartbeatMessage{
				Uptime:  int64(time.Since(h.started).Seconds()),
				Clients: h.ClientCount(),
			})
			if err != nil {
				continue
			}
			h.Broadcast(msg)
		}
	}
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Clients returns a list of currently connected dashboards
func (h *Hub) Clients() []ClientInfo {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	infos := make([]ClientInfo, 0, len(h.clients))
	for c := range h.clients {
		infos = append(infos, ClientInfo{
			RemoteAddr:  c.remoteAddr,
			ConnectedAt: c.connectedAt,
			QueueLength: len(c.send),
		})
	}
	return infos
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mutex.Lock()
	h.closed = true
	clients := make([]*dashboardClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.Unlock()

	for _, c := range clients {
		h.remove(c, "shutdown")
	}
}
