package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

const (
	eventBuffer  = 16
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

type eventClient struct {
	send chan domain.ChangeEvent
	done chan struct{}
	once sync.Once
}

func (c *eventClient) close() {
	c.once.Do(func() { close(c.done) })
}

// EventHub fans patient store changes out to websocket subscribers. A subscriber that
// falls behind by more than eventBuffer events is disconnected.
type EventHub struct {
	mu       sync.Mutex
	clients  map[*eventClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
	log      *logrus.Logger
}

// NewEventHub creates a hub accepting websocket connections from allowedOrigins.
func NewEventHub(allowedOrigins []string, logger *logrus.Logger) *EventHub {
	h := &EventHub{
		clients: make(map[*eventClient]struct{}),
		log:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSuffix(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

// Publish delivers event to every subscriber without blocking.
func (h *EventHub) Publish(event domain.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			h.log.WithField("event", event.Type).Warn("Dropping slow change feed subscriber")
			delete(h.clients, client)
			client.close()
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		client.close()
	}
}

func (h *EventHub) register() (*eventClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	client := &eventClient{
		send: make(chan domain.ChangeEvent, eventBuffer),
		done: make(chan struct{}),
	}
	h.clients[client] = struct{}{}
	return client, true
}

func (h *EventHub) unregister(client *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
	client.close()
}

// Serve upgrades the request to a websocket and streams change events until either side
// goes away.
func (h *EventHub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.log.WithError(err).Warn("Change feed upgrade failed")
		return
	}
	defer conn.Close()

	client, ok := h.register()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeTimeout))
		return
	}
	defer h.unregister(client)

	h.log.WithField("remote", c.ClientIP()).Debug("Change feed subscriber connected")

	// Subscribers never send data; reading detects the close.
	go func() {
		defer client.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.log.WithError(err).Debug("Change feed write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-client.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return
		}
	}
}
