package broker

import (
	"encoding/json"
	"time"

	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const requestTimeout = 5 * time.Second

type Broker struct {
	Conn      *nats.Conn
	Broadcast func(*comm.WSMessage) // fan out to every connected socket
}

func NewBroker(conn *nats.Conn, fncBroadcast func(*comm.WSMessage)) *Broker {
	return &Broker{
		Conn:      conn,
		Broadcast: fncBroadcast,
	}
}

// consume card lifecycle events from the card service
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleCardEvent)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) handleCardEvent(msgNats *nats.Msg) {
	ev := comm.CardEvent{}
	if err := json.Unmarshal(msgNats.Data, &ev); err != nil {
		log.Errorf("Error malformed card event %s", err)
		return
	}

	b.Broadcast(&comm.WSMessage{Type: "card-event", Data: msgNats.Data})
}

// Request asks the card service over NATS and waits for its reply.
func (b *Broker) Request(msgType string, data json.RawMessage) (*comm.WSMessage, error) {
	payload, err := json.Marshal(&comm.WSMessage{Type: msgType, Data: data})
	if err != nil {
		return nil, err
	}

	reply, err := b.Conn.Request(comm.SubjectCardService, payload, requestTimeout)
	if err != nil {
		return nil, err
	}

	msg := &comm.WSMessage{}
	if err := json.Unmarshal(reply.Data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
