package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"campaignflow/internal/campaign"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 256
)

// Event is the envelope pushed to every /events subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type batchStarted struct {
	BatchID string `json:"batch_id"`
	Total   int    `json:"total"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans batch progress out to connected WebSocket clients. It implements
// campaign.Observer; a client that falls behind is dropped rather than
// stalling the batch.
type Hub struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

var _ campaign.Observer = (*Hub)(nil)

func NewHub(allowedOrigins []string, log logrus.FieldLogger) *Hub {
	h := &Hub{log: log, subscribers: make(map[*subscriber]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin) || slices.Contains(allowedOrigins, "*")
		},
	}
	return h
}

func (h *Hub) BatchStarted(batchID string, total int) {
	h.Broadcast("batch_started", batchStarted{BatchID: batchID, Total: total})
}

func (h *Hub) ContactFinished(o campaign.Outcome) { h.Broadcast("contact_finished", o) }

func (h *Hub) BatchFinished(s campaign.Summary) { h.Broadcast("batch_finished", s) }

// Broadcast queues an event for every subscriber without blocking.
func (h *Hub) Broadcast(eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.log.Errorf("Error marshaling %s event: %v", eventType, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
			h.log.Warn("Dropping slow event subscriber")
			h.remove(sub)
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeWS upgrades the request and streams events until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBacklog)}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("Event subscriber registered")

	go h.writePump(sub)
	h.readPump(sub)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		h.remove(sub)
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(sub *subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
}

// readPump discards client frames; it exists to notice disconnects.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.mu.Lock()
		h.remove(sub)
		h.mu.Unlock()
		sub.conn.Close()
		h.log.Debug("Event subscriber unregistered")
	}()
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	defer sub.conn.Close()
	for msg := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
