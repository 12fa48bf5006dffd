package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sqlpilot/sqlpilot/internal/adapter/ws"
	"github.com/sqlpilot/sqlpilot/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. apiKeyHash
// guards the optimization endpoint; an empty hash disables auth.
// requestTimeout bounds API requests only; the websocket progress stream at
// /ws stays open across long runs and must not be cut off by it.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub, apiKeyHash string, requestTimeout time.Duration) {
	r.Get("/health", h.Health)
	r.Get("/ws", hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(apiKeyHash))
		r.Use(chimw.Timeout(requestTimeout))

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Post("/optimize", h.Optimize)
	})
}
