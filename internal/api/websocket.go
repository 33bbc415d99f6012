package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/ordinals-indexer/pkg/models"
)

const (
	eventBuffer  = 256
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy lives in the CORS middleware; the stream is push-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamEnvelope is the wire shape of one pushed indexing event.
type streamEnvelope struct {
	Type  string            `json:"type"`
	Event models.IndexEvent `json:"event"`
}

// Hub fans indexing events out to every connected /stream client.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	events chan models.IndexEvent
	done   chan struct{}
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		events:  make(chan models.IndexEvent, eventBuffer),
		done:    make(chan struct{}),
	}
}

// Run delivers queued events until Close is called. Callers run it in a
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case ev := <-h.events:
			h.deliver(ev)
		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Close stops Run and disconnects every client. Safe to call more than once.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

// Publish enqueues an event for broadcast. When the queue is full the event
// is dropped; the stream must never stall the pipeline.
func (h *Hub) Publish(ev models.IndexEvent) {
	select {
	case h.events <- ev:
	default:
		log.Printf("[Stream] event queue full, dropping %s %s", ev.Type, ev.InscriptionID)
	}
}

func (h *Hub) deliver(ev models.IndexEvent) {
	payload, err := json.Marshal(streamEnvelope{Type: "index_event", Event: ev})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		// A stalled client must not hold up delivery to the rest.
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("[Stream] dropping client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Subscribe upgrades the request and registers the connection on the hub.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[Stream] client connected (%d total)", total)

	// The stream only pushes; reading just detects the disconnect.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			total := len(h.clients)
			h.mu.Unlock()
			conn.Close()
			log.Printf("[Stream] client disconnected (%d total)", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
