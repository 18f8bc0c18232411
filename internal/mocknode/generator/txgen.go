package generator

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/rand"

	core "github.com/chenzhangda16/web3-txstream/internal/txstream/model"
	"github.com/chenzhangda16/web3-txstream/pkg/rng"
)

type TxGen struct {
	addrs []string

	rFrom *rand.Rand
	rTo   *rand.Rand
	rAmt  *rand.Rand
	rGas  *rand.Rand
}

func NewTxGen(addrs []string, rf *rng.Factory) *TxGen {
	return &TxGen{
		addrs: addrs,
		rFrom: rf.R(rng.FromPick),
		rTo:   rf.R(rng.ToPick),
		rAmt:  rf.R(rng.Amount),
		rGas:  rf.R(rng.GasPick),
	}
}

func (g *TxGen) RandomTx(blockNum, ts int64, txIndex int) core.Tx {
	fromIdx := g.rFrom.Intn(len(g.addrs))
	toIdx := g.rTo.Intn(len(g.addrs))
	for toIdx == fromIdx {
		toIdx = g.rTo.Intn(len(g.addrs))
	}
	return g.build(g.addrs[fromIdx], g.addrs[toIdx], blockNum, ts, txIndex)
}

func (g *TxGen) SelfLoopTx(blockNum, ts int64, txIndex int) core.Tx {
	a := g.addrs[g.rFrom.Intn(len(g.addrs))]
	return g.build(a, a, blockNum, ts, txIndex)
}

func (g *TxGen) build(from, to string, blockNum, ts int64, txIndex int) core.Tx {
	// 0.001 .. ~10 ETH in wei, skewed small like real traffic
	wei := (1 + g.rAmt.Int63n(10_000)) * 1_000_000_000_000_000
	gas := int64(21_000 + g.rGas.Intn(180_000))
	gasPrice := int64(1_000_000_000 * (1 + g.rGas.Intn(100)))

	return core.Tx{
		Hash:             g.hash(from, to, blockNum, ts, wei, txIndex),
		From:             from,
		To:               to,
		Value:            hexInt(wei),
		Gas:              hexInt(gas),
		GasPrice:         hexInt(gasPrice),
		BlockNumber:      blockNum,
		TransactionIndex: int64(txIndex),
		BlockTimestamp:   ts,
	}
}

func (g *TxGen) hash(from, to string, bn, ts, amt int64, txIndex int) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%d|%d|%d|%d", from, to, bn, ts, amt, txIndex)))
	return "0x" + hex.EncodeToString(h[:])
}

func hexInt(v int64) string { return fmt.Sprintf("0x%x", v) }
