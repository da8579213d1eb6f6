package external

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
)

// EventsPath is the websocket change feed of the persistence service.
const EventsPath = "/api/patients/events"

// EventsClient subscribes to the persistence service change feed.
type EventsClient struct {
	url    string
	dialer *websocket.Dialer
	log    *logrus.Logger
}

// NewEventsClient creates a client for the service at baseURL (http or https).
func NewEventsClient(baseURL string, logger *logrus.Logger) *EventsClient {
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return &EventsClient{
		url:    u + EventsPath,
		dialer: websocket.DefaultDialer,
		log:    logger,
	}
}

// Subscribe connects to the feed. The returned channel is closed when ctx is done or the
// connection drops.
func (c *EventsClient) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: events handshake returned %d", domain.ErrUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	events := make(chan domain.ChangeEvent, 16)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		for {
			var event domain.ChangeEvent
			if err := conn.ReadJSON(&event); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.WithError(err).Warn("Change feed connection lost")
				}
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	c.log.WithField("url", c.url).Debug("Subscribed to change feed")
	return events, nil
}
