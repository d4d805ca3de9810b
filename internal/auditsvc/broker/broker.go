package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/idcard-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const recordTimeout = 5 * time.Second

// Recorder persists card events.
type Recorder interface {
	Record(ctx context.Context, ev comm.CardEvent) (bool, error)
}

type Broker struct {
	Conn     *nats.Conn
	Recorder Recorder
}

func NewBroker(conn *nats.Conn, r Recorder) *Broker {
	return &Broker{Conn: conn, Recorder: r}
}

// Subscribe joins the audit queue group so each event is stored once across
// audit instances.
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	return b.Conn.QueueSubscribe(topic, "auditsvc", b.handleMessage)
}

func (b *Broker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := b.record(ctx, msg.Data); err != nil {
		log.Errorf("audit: %v", err)
	}
}

func (b *Broker) record(ctx context.Context, data []byte) error {
	ev := comm.CardEvent{}
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("malformed card event: %w", err)
	}
	if ev.CardID == "" || ev.Type == "" {
		return fmt.Errorf("card event missing id or type")
	}

	inserted, err := b.Recorder.Record(ctx, ev)
	if err != nil {
		return err
	}
	if !inserted {
		log.Debugf("audit: duplicate %s for card %s ignored", ev.Type, ev.CardID)
		return nil
	}

	log.WithFields(log.Fields{"card_id": ev.CardID, "type": ev.Type, "actor": ev.Actor}).Info("card event recorded")
	return nil
}
