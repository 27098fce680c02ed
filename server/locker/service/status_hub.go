package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	commonlog "hospital_locker/server/common/log"
)

type StatusLevel string

const (
	StatusInfo  StatusLevel = "info"
	StatusError StatusLevel = "error"
)

// Status is the one-line message shown to the user after each action.
type Status struct {
	Level   StatusLevel `json:"level"`
	Op      string      `json:"op"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

type StatusReporter interface {
	Report(st Status)
}

type WSClient struct {
	ID   string
	Conn *websocket.Conn
	mu   sync.Mutex
}

// StatusHub fans status updates out to every connected websocket and
// remembers the latest one for polling clients.
type StatusHub struct {
	mu      sync.RWMutex
	clients map[string]*WSClient
	last    Status
}

func NewStatusHub() *StatusHub {
	return &StatusHub{clients: map[string]*WSClient{}}
}

func (h *StatusHub) Register(conn *websocket.Conn) *WSClient {
	client := &WSClient{ID: uuid.NewString(), Conn: conn}
	h.mu.Lock()
	h.clients[client.ID] = client
	last := h.last
	h.mu.Unlock()
	if last.Message != "" {
		client.WriteJSON(last)
	}
	return client
}

func (h *StatusHub) Unregister(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()
	_ = client.Conn.Close()
}

func (h *StatusHub) Report(st Status) {
	if st.At.IsZero() {
		st.At = time.Now().UTC()
	}
	h.mu.Lock()
	h.last = st
	clients := make([]*WSClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.WriteJSON(st)
	}
	if st.Level == StatusError {
		commonlog.Warnf("event=status op=%s level=%s fanout_count=%d message=%q", st.Op, st.Level, len(clients), st.Message)
		return
	}
	commonlog.Debugf("event=status op=%s level=%s fanout_count=%d message=%q", st.Op, st.Level, len(clients), st.Message)
}

func (h *StatusHub) Last() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

func (h *StatusHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *WSClient) WriteJSON(payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = c.Conn.WriteJSON(payload)
}
