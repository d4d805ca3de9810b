package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/avvvet/idcard-services/internal/auditsvc/store"
	"github.com/avvvet/idcard-services/internal/cardsvc/auth"
	errs "github.com/avvvet/idcard-services/internal/errors"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

const maxListLimit = 500

// EventLister reads recorded card events.
type EventLister interface {
	ListByCard(ctx context.Context, cardID string, limit int) ([]*store.Entry, error)
}

type Handler struct {
	events EventLister
}

func NewHandler(events EventLister) *Handler {
	return &Handler{events: events}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	httpErr := errs.MapErrorToHTTP(err)
	if httpErr.StatusCode >= http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	h.CreateResponse(w, Response{Message: httpErr.Code, Code: httpErr.StatusCode, Error: httpErr.Message})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: map[string]string{"status": "ok"}})
}

// CardEvents lists the audit trail of one card, newest first.
func (h *Handler) CardEvents(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardId")

	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxListLimit {
			h.writeError(w, errs.Validation("limit", "must be between 1 and "+strconv.Itoa(maxListLimit)))
			return
		}
		limit = v
	}

	entries, err := h.events.ListByCard(r.Context(), cardID, limit)
	if err != nil {
		h.writeError(w, errs.Unavailable("audit store unavailable", err))
		return
	}
	if entries == nil {
		entries = []*store.Entry{}
	}
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: entries})
}

// requireAdmin rejects verified tokens that do not carry the admin role.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || claims["role"] != auth.RoleAdmin {
			h.writeError(w, errs.Unauthorized("admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) SetRoutes(r chi.Router, tokenAuth *jwtauth.JWTAuth) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(tokenAuth))
			r.Use(jwtauth.Authenticator)
			r.Use(h.requireAdmin)

			r.Get("/events/{cardId}", h.CardEvents)
		})
	})
}
