package handlers

import (
	"encoding/json"
	"net/http"

	config "github.com/avvvet/idcard-services/configs"
	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/avvvet/idcard-services/internal/socketsvc/ws"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	upgrader websocket.Upgrader
	ws       *ws.Ws
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
}

// NewHandler builds the websocket endpoint. allowOrigin decides which
// browser origins may connect; nil accepts all.
func NewHandler(s *ws.Ws, allowOrigin func(origin string) bool) *Handler {
	check := func(r *http.Request) bool { return true }
	if allowOrigin != nil {
		check = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowOrigin(origin)
		}
	}

	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     check,
		},
		ws: s,
	}
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	h.ws.StoreConnection(socketId, conn)

	log.Infof("New WebSocket connection established: %s", socketId)

	go h.handleConnection(conn, socketId)
}

func (h *Handler) handleConnection(conn *websocket.Conn, socketId string) {
	defer func() {
		log.Infof("Closing WebSocket connection: %s", socketId)
		h.ws.HandleDisconnect(socketId)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("WebSocket unexpected close error for socket %s: %v", socketId, err)
			} else {
				log.Debugf("WebSocket connection closed for socket: %s", socketId)
			}
			return
		}

		message := &comm.WSMessage{}
		if err := json.Unmarshal(raw, message); err != nil {
			log.Warnf("Failed to unmarshal message from socket %s: %v", socketId, err)
			h.ws.Send(socketId, &comm.WSMessage{Type: "error", Error: "Invalid message format"})
			continue
		}

		log.Debugf("Received message from socket %s: type=%s", socketId, message.Type)
		h.ws.SocketMessage(socketId, message)
	}
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "socket service is running",
		Code:    http.StatusOK,
		Data:    map[string]string{"status": "ok", "instance": config.GetInstanceId()},
	})
}

// Sockets reports the number of connected clients.
func (h *Handler) Sockets(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "ok",
		Code:    http.StatusOK,
		Data:    map[string]int{"connected": h.ws.Count()},
	})
}
