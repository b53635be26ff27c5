// Package ws relays vault events to the Mini App over a websocket.
package ws

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Authorizer checks the session token of an upgrade request.
type Authorizer interface {
	Authorize(r *http.Request) error
}

// Subscriber is the event source; application.EventBus implements it.
type Subscriber interface {
	Subscribe() (<-chan model.Event, func())
}

// Message is the JSON frame sent for every event.
type Message struct {
	Type   string `json:"type"`
	State  string `json:"state"`
	Op     string `json:"op,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Haptic string `json:"haptic,omitempty"`
	At     string `json:"at"`
}

func toMessage(e model.Event) Message {
	return Message{
		Type:   string(e.Type),
		State:  string(e.State),
		Op:     e.Op,
		Kind:   e.Kind,
		Haptic: string(e.Haptic),
		At:     e.At.UTC().Format(time.RFC3339Nano),
	}
}

// Handler upgrades authorized requests and streams events until the client
// goes away or the vault locks. A lock ends the stream because the token
// that opened it is no longer valid.
type Handler struct {
	events   Subscriber
	auth     Authorizer
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a Handler accepting upgrades from allowedOrigins.
func NewHandler(events Subscriber, auth Authorizer, allowedOrigins []string, logger *slog.Logger) *Handler {
	h := &Handler{events: events, auth: auth, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == strings.TrimSpace(allowed) {
					return true
				}
			}
			return false
		},
	}
	return h
}

// RegisterRoutes registers the event stream on the provided mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.Handle("GET /api/v1/events", h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Authorize(r); err != nil {
		http.Error(w, `{"error":"unauthorized","kind":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.events.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go h.readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(toMessage(e)); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
			if e.Type == model.EventLocked {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "vault locked"),
					time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and keeps the pong deadline fresh. It
// closes done when the connection fails.
func (h *Handler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
