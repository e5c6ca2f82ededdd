package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat/internal/store"
)

// HandlerOptions configures the WebSocket endpoint.
type HandlerOptions struct {
	AllowedOrigins []string
	MaxMessageSize int64
	HistoryLimit   int
}

// NewWebSocketHandler returns the upgrade handler. Each accepted connection
// becomes a Client registered with the hub, which starts its pumps.
func NewWebSocketHandler(hub *Hub, st store.Store, opts HandlerOptions, log zerolog.Logger) http.HandlerFunc {
	policy := newOriginPolicy(opts.AllowedOrigins, log)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}

		client := NewClient(conn, hub, st, r.RemoteAddr, ClientOptions{
			MaxMessageSize: opts.MaxMessageSize,
			HistoryLimit:   opts.HistoryLimit,
			Logger:         log,
		})
		hub.Register(client)
	}
}

// HealthHandler reports liveness in plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "relay is running")
}
