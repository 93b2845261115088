package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/logging"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/store"
)

// maxHealthConnections caps the health stream the same way the teacher's
// MetricsHub caps per-tenant dashboards, to keep one runaway client from
// degrading the broadcast loop for everyone else.
const maxHealthConnections = 200

// healthPayload is what health() (spec §6) reports over the stream.
type healthPayload struct {
	Status       store.HealthStatus `json:"status"`
	ResponseTime time.Duration      `json:"response_time"`
	PoolStats    map[string]any     `json:"pool_stats"`
}

// HealthHub broadcasts a periodic health() snapshot to connected WebSocket
// clients. Grounded on the teacher's control_plane/ws_hub.go single
// broadcaster pattern (one ticker driving all fan-out, avoiding N
// duplicate ticker goroutines per connection), generalized from
// per-tenant dashboard metrics to a single process-wide health snapshot.
type HealthHub struct {
	upgrader websocket.Upgrader
	st       store.Store

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	log *zap.SugaredLogger
}

// NewHealthHub builds a hub that streams st.Health() snapshots.
func NewHealthHub(st store.Store) *HealthHub {
	return &HealthHub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		st:       st,
		clients:  make(map[*websocket.Conn]struct{}),
		log:      logging.Component("health_hub"),
	}
}

// ServeHTTP upgrades a request to a WebSocket and registers the connection
// for the broadcast loop.
func (h *HealthHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if len(h.clients) >= maxHealthConnections {
		h.mu.Unlock()
		conn.Close()
		h.log.Warnw("health stream connection rejected: at capacity", "max", maxHealthConnections)
		return
	}
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

// Run drives the single broadcast ticker until ctx is cancelled, closing
// every connected client on exit.
func (h *HealthHub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.broadcast(ctx)
		}
	}
}

func (h *HealthHub) broadcast(ctx context.Context) {
	health := h.st.Health(ctx)
	payload := healthPayload{
		Status:       health.Status,
		ResponseTime: health.ResponseTime,
		PoolStats:    health.PoolStats,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorw("health payload marshal failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			h.log.Infow("health stream client write failed, dropping", "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *HealthHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}
