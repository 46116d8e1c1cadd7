package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func SetupRoutes(deps Deps) *http.ServeMux {
	h := newHandlers(deps)

	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", h.webSocket)
	mux.HandleFunc("/test", TestPageHandler)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /api/presence", h.presenceBatch)
	mux.HandleFunc("GET /api/presence/{userId}", h.presenceOne)
	if h.hook != nil {
		mux.HandleFunc("POST /internal/messages", h.messageCreated)
	}
	return mux
}
