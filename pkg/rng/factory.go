package rng

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// Named streams used by the mock node. Each stream is seeded independently
// from the base seed so adding a new one never shifts the others.
const (
	AddrPool   = "addr_pool"
	FromPick   = "from_pick"
	ToPick     = "to_pick"
	Amount     = "amount"
	GasPick    = "gas_pick"
	TxCount    = "tx_count"
	Choose     = "choose_loop_vs_rand"
	BlockNonce = "block_nonce"
)

type Mode int

const (
	Deterministic Mode = iota
	Real
)

type Factory struct {
	baseSeed int64
	mode     Mode

	mu      sync.Mutex
	streams map[string]*rand.Rand
}

func New(mode Mode, seed int64) *Factory {
	if mode == Real {
		// Real mode seeds from the clock once at startup, not per draw.
		seed = time.Now().UnixNano()
	}
	return &Factory{
		baseSeed: seed,
		mode:     mode,
		streams:  make(map[string]*rand.Rand),
	}
}

// R returns a named random stream, initializing and caching it on first use.
// Hot paths should grab the stream once and keep it in a field instead of
// doing a map lookup per draw.
func (f *Factory) R(name string) *rand.Rand {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.streams[name]; ok {
		return r
	}
	s := deriveSeed(f.baseSeed, name)
	r := rand.New(rand.NewSource(s))
	f.streams[name] = r
	return r
}

func deriveSeed(base int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) ^ base
}
