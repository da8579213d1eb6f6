package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscillometry-report-server/internal/domain"
)

func TestNewEventsClient_URL(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	assert.Equal(t, "ws://localhost:8080/api/patients/events", NewEventsClient("http://localhost:8080/", logger).url)
	assert.Equal(t, "wss://reports.example/api/patients/events", NewEventsClient("https://reports.example", logger).url)
}

func TestEventsClient_Subscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, EventsPath, r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		conn.WriteJSON(domain.ChangeEvent{Type: domain.ChangeSaved, ID: "p-1"})
		conn.WriteJSON(domain.ChangeEvent{Type: domain.ChangeCleared})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	logger, _ := logtest.NewNullLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := NewEventsClient(server.URL, logger).Subscribe(ctx)
	require.NoError(t, err)

	var got []domain.ChangeEvent
	for event := range events {
		got = append(got, event)
	}
	assert.Equal(t, []domain.ChangeEvent{
		{Type: domain.ChangeSaved, ID: "p-1"},
		{Type: domain.ChangeCleared},
	}, got)
}

func TestEventsClient_SubscribeUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	logger, _ := logtest.NewNullLogger()

	_, err := NewEventsClient(server.URL, logger).Subscribe(context.Background())
	server.Close()
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
