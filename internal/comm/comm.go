package comm

import (
	"encoding/json"
	"time"
)

// NATS subjects shared by the services.
const (
	SubjectCardEvents  = "card.events"  // card lifecycle events
	SubjectCardService = "card.service" // request/reply into the card service
)

// Card lifecycle event types.
const (
	EventCardCreated = "card-created"
	EventCardUpdated = "card-updated"
	EventCardDeleted = "card-deleted"
)

// WSMessage is the envelope used on websockets and on card.service requests.
type WSMessage struct {
	Type     string          `json:"type"` // e.g. "init", "get-summary"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// CardEvent is published on card.events after a committed mutation.
type CardEvent struct {
	Type   string    `json:"type"`
	CardID string    `json:"cardId"`
	CNIC   string    `json:"cnic"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

type GetCardRequest struct {
	ID string `json:"id"`
}
