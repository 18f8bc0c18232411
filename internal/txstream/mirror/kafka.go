package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/hub"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

// Envelope wraps every mirrored record so downstream consumers can dispatch
// on type without decoding the payload first.
type Envelope struct {
	Type string          `json:"type"` // "tx"
	TS   int64           `json:"ts"`   // unix milli
	Data json.RawMessage `json:"data"`
}

const TypeTx = "tx"

// Mirror republishes the deduplicated tx stream to a Kafka topic. It is just
// another hub subscriber: a slow or dead broker only costs the mirror its own
// queue, never the SSE subscribers or the ingestion loop.
type Mirror struct {
	topic string
	sp    sarama.SyncProducer
}

func New(brokersCSV, topic string) (*Mirror, error) {
	if topic == "" {
		return nil, errors.New("topic empty")
	}
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, errors.New("no brokers")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 10
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1 // required by the idempotent producer
	cfg.Version = sarama.V2_1_0_0

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Mirror{topic: topic, sp: sp}, nil
}

func (m *Mirror) Close() error {
	if m.sp != nil {
		return m.sp.Close()
	}
	return nil
}

// Run drains the subscription until ctx is cancelled or the queue is closed.
// Produce failures are logged and the record dropped; the mirror is a
// best-effort tap, not a durable log.
func (m *Mirror) Run(ctx context.Context, sub *hub.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := m.produce(tx); err != nil {
				log.Printf("[mirror] produce err: hash=%s err=%v", tx.Hash, err)
			}
		}
	}
}

// Encode wraps tx in an Envelope and marshals the whole wire record.
func Encode(tx model.Tx, ts int64) ([]byte, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: TypeTx, TS: ts, Data: data})
}

func (m *Mirror) produce(tx model.Tx) error {
	b, err := Encode(tx, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	// Keyed by block number so one block's txs land on one partition in order.
	msg := &sarama.ProducerMessage{
		Topic: m.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(tx.BlockNumber, 10)),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = m.sp.SendMessage(msg)
	return err
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}
