package archiver

import (
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/mirror"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

// Handler consumes the mirrored tx topic and archives each record into
// Postgres. Insert failures are not marked, so the record is redelivered.
type Handler struct {
	pg *PGWriter
}

func NewHandler(pg *PGWriter) *Handler { return &Handler{pg: pg} }

var _ sarama.ConsumerGroupHandler = (*Handler)(nil)

func (h *Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *Handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		tx, ok, err := decodeTx(msg.Value)
		if err != nil {
			log.Printf("[archiver] bad record: p=%d off=%d err=%v", msg.Partition, msg.Offset, err)
			sess.MarkMessage(msg, "")
			continue
		}
		if !ok {
			// Foreign record type; nothing for us to archive.
			sess.MarkMessage(msg, "")
			continue
		}
		if err := h.pg.InsertTx(ctx, tx); err != nil {
			log.Printf("[archiver] insert failed: hash=%s err=%v", tx.Hash, err)
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

// decodeTx unwraps one mirrored wire record. ok is false when the envelope
// carries a type this consumer does not handle.
func decodeTx(value []byte) (tx model.Tx, ok bool, err error) {
	var env mirror.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return model.Tx{}, false, err
	}
	if env.Type != mirror.TypeTx {
		return model.Tx{}, false, nil
	}
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return model.Tx{}, false, err
	}
	return tx, true, nil
}
