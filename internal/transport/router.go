package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter assembles the full HTTP surface: health endpoints, the
// join-code REST API, the admin session API, and the two WebSocket
// upgrade points. Adapted from the teacher's setupRouter.
func NewRouter(hub *Hub, rateLimiter *RateLimiter, auth *AdminAuth) *chi.Mux {
	join := NewJoinHandler(hub)
	health := NewHealthHandler(hub.metrics)
	participant := NewParticipantHandler(hub)
	admin := NewAdminHandler(hub, auth)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(CORSOptions()))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/health", health.Health)
	r.Get("/ready", health.Readiness)
	r.Get("/live", health.Liveness)

	r.Route("/sessions", func(r chi.Router) {
		r.Use(rateLimiter.Limit)
		r.Post("/join", join.Join)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(rateLimiter.Limit)
		r.Post("/sessions", join.CreateSession)
	})

	// WebSocket upgrades validate their own credentials from the query
	// string (a browser WebSocket client can't set custom headers), so
	// neither goes through AdminAuth.Authenticate or the rate limiter.
	r.Get("/ws/participant", participant.HandleConnect)
	r.Get("/ws/controller", admin.HandleConnect)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NOT_FOUND","userMessage":"endpoint not found"}`))
	})

	return r
}
