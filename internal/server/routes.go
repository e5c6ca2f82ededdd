package server

import "net/http"

// SetupRoutes wires the application routes: health check at the root and the
// WebSocket endpoint at /ws.
func SetupRoutes(ws http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", ws)
	return mux
}
