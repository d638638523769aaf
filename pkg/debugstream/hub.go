// Package debugstream implements the unauthenticated websocket
// introspection endpoint described in §4.M: every connected client
// receives one JSON stats snapshot per second. It accepts connections from
// any address the listener is reachable on. It is a debugging
// aid, not a monitoring integration — there is no metrics exporter in this
// pack's dependency surface, so gorilla/websocket's push model is the
// closest fit available to watch request handling live.
package debugstream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lkarlslund/claude-gateway/pkg/stats"
)

const pushInterval = 1 * time.Second

var upgrader = websocket.Upgrader{
	// This endpoint carries no secrets and is meant to be reached from a
	// local dashboard during development; it does not enforce an origin
	// allowlist.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub upgrades incoming connections and pushes a stats snapshot to each
// one on a fixed interval until the connection closes.
type Hub struct {
	registry *stats.Registry
	logger   *log.Logger
}

func NewHub(registry *stats.Registry, logger *log.Logger) *Hub {
	return &Hub{registry: registry, logger: logger}
}

// ServeWS upgrades the HTTP request to a websocket and blocks, pushing
// snapshots until the client disconnects or a write fails.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("debug stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()

	// A read pump is required so gorilla/websocket notices the peer closing
	// the connection (control frames are only processed while a read is in
	// flight); the client never sends anything meaningful back.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			snap := h.registry.Snapshot()
			payload, err := json.Marshal(snap)
			if err != nil {
				h.logger.Error("marshal debug snapshot", "err", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
