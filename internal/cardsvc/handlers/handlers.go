package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/avvvet/idcard-services/internal/cardsvc/auth"
	"github.com/avvvet/idcard-services/internal/cardsvc/service"
	errs "github.com/avvvet/idcard-services/internal/errors"
	"github.com/avvvet/idcard-services/internal/metrics"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	cards      *service.CardService
	stats      *service.StatsService
	login      *auth.AdminLogin
	authorizer auth.Authorizer
	metrics    *metrics.Metrics
}

// NewHandler wires the HTTP layer. m may be nil to disable /metrics.
func NewHandler(cards *service.CardService, stats *service.StatsService, login *auth.AdminLogin, authorizer auth.Authorizer, m *metrics.Metrics) *Handler {
	return &Handler{
		cards:      cards,
		stats:      stats,
		login:      login,
		authorizer: authorizer,
		metrics:    m,
	}
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

func (h *Handler) ok(w http.ResponseWriter, code int, message string, data interface{}) {
	h.CreateResponse(w, Response{Message: message, Code: code, Data: data})
}

// WriteError maps a domain error to its status code. Internal failures are
// logged and answered with a generic message.
func (h *Handler) WriteError(w http.ResponseWriter, err error) {
	httpErr := errs.MapErrorToHTTP(err)
	if httpErr.StatusCode >= http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	h.CreateResponse(w, Response{
		Message: httpErr.Code,
		Code:    httpErr.StatusCode,
		Error:   httpErr.Message,
	})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.ok(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

func (h *Handler) RootHandler(w http.ResponseWriter, r *http.Request) {
	h.ok(w, http.StatusOK, "Identity Card System API is running", nil)
}

// RateLimited answers throttled requests. Clients wait Retry-After seconds
// before retrying.
func (h *Handler) RateLimited(w http.ResponseWriter, r *http.Request) {
	if w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "60")
	}
	h.CreateResponse(w, Response{
		Message: "RATE_LIMITED",
		Code:    http.StatusTooManyRequests,
		Error:   "Too many requests, please try again later.",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.WriteError(w, errs.Validation("body", "must be a JSON object with email and password"))
		return
	}

	res, err := h.login.Login(req.Email, req.Password)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusOK, "Login successful", res)
}
