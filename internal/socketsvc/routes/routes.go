package routes

import (
	"github.com/avvvet/idcard-services/internal/socketsvc/handlers"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

// SetRoutes mounts the websocket endpoint. Operational endpoints other than
// health require a token signed with the card service secret.
func SetRoutes(r chi.Router, h *handlers.Handler, tokenAuth *jwtauth.JWTAuth) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/ws", h.HandleWebSocket)
		r.Get("/health", h.HealthHandler)

		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Get("/sockets", h.Sockets)
		})
	})
}
