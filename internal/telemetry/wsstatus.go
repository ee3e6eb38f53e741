package telemetry

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/MatweyL/Potok/internal/logging"
)

// StatusBroadcaster pushes each Collect Snapshot to every connected
// operator over a websocket, grounded on
// cmd/announce-webui/main.go's wsClients/sendWebSocketStats pattern: one
// buffered channel per connection, fed by Broadcast and drained by a
// per-connection writer goroutine so a slow reader can never block
// collection.
type StatusBroadcaster struct {
	upgrader websocket.Upgrader
	log      *logging.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan Snapshot
}

func NewStatusBroadcaster(log *logging.Logger) *StatusBroadcaster {
	return &StatusBroadcaster{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log.WithComponent("ws-status"),
		clients: make(map[*websocket.Conn]chan Snapshot),
	}
}

// Handler upgrades the request to a websocket and streams Snapshots to it
// until the connection closes.
func (b *StatusBroadcaster) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", logging.Fields{"error": err.Error()})
		return
	}

	ch := make(chan Snapshot, 8)
	b.mu.Lock()
	b.clients[conn] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		close(ch)
		conn.Close()
	}()

	for snap := range ch {
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

// Broadcast fans snap out to every connected client. A client whose
// buffer is full is skipped rather than blocking the caller — it will
// simply see the next snapshot.
func (b *StatusBroadcaster) Broadcast(snap Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.clients {
		select {
		case ch <- snap:
		default:
		}
	}
}
