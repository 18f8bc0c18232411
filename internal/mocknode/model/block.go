package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	core "github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

// Block is the mocknode's storage unit. Transactions are already in the
// wire shape the streaming service expects, so the /query handler can
// return them as-is.
type Block struct {
	Number    int64     `json:"number"`
	Timestamp int64     `json:"timestamp"`
	Hash      string    `json:"hash"`
	Txs       []core.Tx `json:"txs"`
}

func Build(number, timestamp int64, txs []core.Tx) Block {
	return Block{
		Number:    number,
		Timestamp: timestamp,
		Hash:      hashBlock(number, timestamp, txs),
		Txs:       txs,
	}
}

func hashBlock(number, timestamp int64, txs []core.Tx) string {
	h := sha256.New()
	var b8 [8]byte
	binary.BigEndian.PutUint64(b8[:], uint64(number))
	h.Write(b8[:])
	binary.BigEndian.PutUint64(b8[:], uint64(timestamp))
	h.Write(b8[:])
	for _, tx := range txs {
		h.Write([]byte(tx.Hash))
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func EncodeBlock(b Block) ([]byte, error) { return json.Marshal(b) }

func DecodeBlock(raw []byte) (Block, error) {
	var b Block
	err := json.Unmarshal(raw, &b)
	return b, err
}
