package ws

import (
	"encoding/json"
	"sync"

	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// CardServiceClient forwards requests to the card service.
type CardServiceClient interface {
	Request(msgType string, data json.RawMessage) (*comm.WSMessage, error)
}

// client serializes writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(m *comm.WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(m)
}

type Ws struct {
	connMap sync.Map // to keep track of socket connection with socketId
	Broker  CardServiceClient
}

func NewWs() *Ws {
	return &Ws{}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	switch message.Type {
	case "init", "get-summary":
		s.forward(socketId, "get-summary", message.Type+"-response", nil)
	case "get-today-activity":
		s.forward(socketId, "get-today-activity", "get-today-activity-response", nil)
	case "get-card":
		s.forward(socketId, "get-card", "get-card-response", message.Data)
	case "ping":
		s.Send(socketId, &comm.WSMessage{Type: "pong"})
	default:
		log.Warnf("unknown event received: %s", message.Type)
		s.Send(socketId, &comm.WSMessage{Type: "error", Error: "unknown message type"})
	}
}

func (s *Ws) forward(socketId, requestType, responseType string, data json.RawMessage) {
	if s.Broker == nil {
		s.Send(socketId, &comm.WSMessage{Type: responseType, Error: "card service unavailable"})
		return
	}

	reply, err := s.Broker.Request(requestType, data)
	if err != nil {
		log.Errorf("Failed %s request for socket %s: %v", requestType, socketId, err)
		s.Send(socketId, &comm.WSMessage{Type: responseType, Error: "card service unavailable"})
		return
	}

	reply.Type = responseType
	reply.SocketId = socketId
	s.Send(socketId, reply)
}

// Send writes to one socket; unknown sockets are ignored.
func (s *Ws) Send(socketId string, m *comm.WSMessage) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return
	}
	if err := c.(*client).write(m); err != nil {
		log.Errorf("write to socket %s: %v", socketId, err)
	}
}

// Broadcast writes to every connected socket.
func (s *Ws) Broadcast(m *comm.WSMessage) {
	s.connMap.Range(func(key, value any) bool {
		if err := value.(*client).write(m); err != nil {
			log.Errorf("broadcast to socket %s: %v", key, err)
		}
		return true // continue iterating
	})
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, &client{conn: conn})
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*client).conn, true
}

func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
}

func (s *Ws) Count() int {
	count := 0
	s.connMap.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}
