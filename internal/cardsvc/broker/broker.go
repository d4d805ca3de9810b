package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avvvet/idcard-services/internal/cardsvc/service"
	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const queueGroup = "cardsvc"

// Publisher is the subset of *nats.Conn the broker publishes through.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Broker struct {
	Conn         *nats.Conn
	Publisher    Publisher
	CardService  *service.CardService
	StatsService *service.StatsService
}

func NewBroker(nc *nats.Conn, statsService *service.StatsService) *Broker {
	b := &Broker{
		Conn:         nc,
		StatsService: statsService,
	}
	if nc != nil {
		b.Publisher = nc
	}
	return b
}

// CardChanged publishes the event on card.events. Publish failures are logged
// only; the mutation is already committed.
func (b *Broker) CardChanged(_ context.Context, ev comm.CardEvent) {
	if b.Publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("Error marshal card event %s", err)
		return
	}
	if err := b.Publisher.Publish(comm.SubjectCardEvents, payload); err != nil {
		log.Errorf("Error publishing to topic %s: %s", comm.SubjectCardEvents, err)
	}
}

// SubscribeCardService answers request/reply messages on topic. Instances
// share a queue group so each request is handled once.
func (b *Broker) SubscribeCardService(topic string) (*nats.Subscription, error) {
	return b.Conn.QueueSubscribe(topic, queueGroup, b.handleMessage)
}

func (b *Broker) handleMessage(msgNat *nats.Msg) {
	reply := b.dispatch(msgNat.Data)
	if msgNat.Reply == "" {
		return
	}
	if err := msgNat.Respond(reply); err != nil {
		log.Errorf("Error responding on %s: %s", msgNat.Reply, err)
	}
}

// dispatch handles one request and always returns an encoded WSMessage, with
// Error set on failure.
func (b *Broker) dispatch(data []byte) []byte {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		log.Errorf("Error nats message %s", err)
		return encode(&comm.WSMessage{Type: "error", Error: "malformed message"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp := &comm.WSMessage{Type: msg.Type + "-response", SocketId: msg.SocketId}

	var (
		result interface{}
		err    error
	)
	switch msg.Type {
	case "get-summary":
		result, err = b.StatsService.Summary(ctx)
	case "get-today-activity":
		result, err = b.StatsService.TodayActivity(ctx)
	case "get-card":
		if b.CardService == nil {
			resp.Error = "unsupported message type"
			return encode(resp)
		}
		var req comm.GetCardRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			resp.Error = "malformed get-card request"
			return encode(resp)
		}
		result, err = b.CardService.Get(ctx, req.ID)
	default:
		log.Warnf("unknown message type received: %s", msg.Type)
		resp.Error = "unsupported message type"
		return encode(resp)
	}

	if err != nil {
		log.Errorf("Error [%s] %s", msg.Type, err)
		resp.Error = err.Error()
		return encode(resp)
	}

	resp.Data, err = json.Marshal(result)
	if err != nil {
		resp.Error = "encode response"
	}
	return encode(resp)
}

func encode(m *comm.WSMessage) []byte {
	b, err := json.Marshal(m)
	if err != nil {
		log.Errorf("Error marshal message %s", err)
		return []byte(`{"type":"error","error":"encode"}`)
	}
	return b
}
