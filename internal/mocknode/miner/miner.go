package miner

import (
	"context"
	"log"
	"time"

	"github.com/chenzhangda16/web3-txstream/internal/mocknode/generator"
	"github.com/chenzhangda16/web3-txstream/internal/mocknode/model"
	"github.com/chenzhangda16/web3-txstream/internal/mocknode/store"
	core "github.com/chenzhangda16/web3-txstream/internal/txstream/model"
	"github.com/chenzhangda16/web3-txstream/pkg/rng"
)

// Miner appends one block per tick. Warmup pre-mines a backlog so a fresh
// node starts with enough history for a consumer's bootstrap lookback.
type Miner struct {
	store *store.RocksStore
	txgen *generator.TxGen
	rf    *rng.Factory
	tick  time.Duration

	minTxs int
	maxTxs int
}

func NewMiner(st *store.RocksStore, txgen *generator.TxGen, rf *rng.Factory, tick time.Duration) *Miner {
	return &Miner{
		store:  st,
		txgen:  txgen,
		rf:     rf,
		tick:   tick,
		minTxs: 5,
		maxTxs: 40,
	}
}

// Warmup mines n blocks immediately, backdating timestamps one tick apart
// so the pre-mined history looks like a chain that has been running.
func (m *Miner) Warmup(n int64) error {
	if n <= 0 {
		return nil
	}
	head, err := m.store.Head()
	if err != nil {
		return err
	}

	step := int64(m.tick / time.Second)
	if step <= 0 {
		step = 1
	}
	ts := time.Now().Unix() - n*step

	for i := int64(0); i < n; i++ {
		if err := m.mineOne(head+1+i, ts+i*step); err != nil {
			return err
		}
	}
	log.Printf("[miner] warmup done: blocks=%d head=%d", n, head+n)
	return nil
}

func (m *Miner) Run(ctx context.Context) error {
	head, err := m.store.Head()
	if err != nil {
		return err
	}
	nextNum := head + 1
	lastTs := int64(0)

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case now := <-ticker.C:
			ts := now.Unix()
			if ts <= lastTs {
				ts = lastTs + 1 // timestamps stay strictly increasing
			}
			if err := m.mineOne(nextNum, ts); err != nil {
				return err
			}
			nextNum++
			lastTs = ts
		}
	}
}

func (m *Miner) mineOne(bn, ts int64) error {
	nTx := m.minTxs + m.rf.R(rng.TxCount).Intn(m.maxTxs-m.minTxs+1)
	txs := make([]core.Tx, 0, nTx)
	for i := 0; i < nTx; i++ {
		if m.rf.R(rng.Choose).Float64() < 0.1 {
			txs = append(txs, m.txgen.SelfLoopTx(bn, ts, i))
		} else {
			txs = append(txs, m.txgen.RandomTx(bn, ts, i))
		}
	}

	blk := model.Build(bn, ts, txs)
	raw, err := model.EncodeBlock(blk)
	if err != nil {
		return err
	}
	return m.store.AppendBlock(bn, raw)
}
