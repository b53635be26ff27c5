package ws_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tgvault/internal/adapter/driving/ws"
	"github.com/ericfisherdev/tgvault/internal/application"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

type tokenAuth struct{ token string }

func (a tokenAuth) Authorize(r *http.Request) error {
	if r.URL.Query().Get("token") != a.token {
		return errors.New("unauthorized")
	}
	return nil
}

func setupServer(t *testing.T, bus *application.EventBus) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := ws.NewHandler(bus, tokenAuth{token: "good"}, []string{"https://web.telegram.org"}, logger)
	mux := http.NewServeMux()
	ws.RegisterRoutes(mux, h)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/events?token=" + token
}

func waitSubscribed(t *testing.T, bus *application.EventBus) {
	t.Helper()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEvents_RelaysOperations(t *testing.T) {
	bus := application.NewEventBus(0)
	server := setupServer(t, bus)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "good"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitSubscribed(t, bus)

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	bus.Publish(model.Event{
		Type: model.EventOperation, State: model.StateUnlocked, Op: "add",
		Kind: "", Haptic: model.HapticSuccess, At: at,
	})

	var msg ws.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, ws.Message{
		Type: "operation", State: "unlocked", Op: "add", Haptic: "success", At: "2026-05-01T09:00:00Z",
	}, msg)
}

func TestEvents_LockClosesStream(t *testing.T) {
	bus := application.NewEventBus(0)
	server := setupServer(t, bus)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "good"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitSubscribed(t, bus)

	bus.Publish(model.Event{Type: model.EventLocked, State: model.StateLocked, At: time.Now()})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "locked", msg.Type)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	require.Eventually(t, func() bool { return bus.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEvents_Unauthorized(t *testing.T) {
	server := setupServer(t, application.NewEventBus(0))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "bad"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEvents_ForeignOrigin(t *testing.T) {
	server := setupServer(t, application.NewEventBus(0))

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "good"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
