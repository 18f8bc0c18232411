package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-txstream/pkg/rng"
)

func newGen(seed int64) *TxGen {
	rf := rng.New(rng.Deterministic, seed)
	addrs := GenAddrs(50, rf.R(rng.AddrPool))
	return NewTxGen(addrs, rf)
}

func TestRandomTxFieldsWellFormed(t *testing.T) {
	g := newGen(7)

	for i := 0; i < 100; i++ {
		tx := g.RandomTx(42, 1_700_000_000, i)

		require.True(t, strings.HasPrefix(tx.Hash, "0x"))
		require.True(t, strings.HasPrefix(tx.From, "0x"))
		require.NotEqual(t, tx.From, tx.To)
		require.True(t, strings.HasPrefix(tx.Value, "0x"))
		require.True(t, strings.HasPrefix(tx.Gas, "0x"))
		require.True(t, strings.HasPrefix(tx.GasPrice, "0x"))
		require.Equal(t, int64(42), tx.BlockNumber)
		require.Equal(t, int64(i), tx.TransactionIndex)
	}
}

func TestSelfLoopTxSameEnds(t *testing.T) {
	g := newGen(7)
	tx := g.SelfLoopTx(1, 1_700_000_000, 0)
	require.Equal(t, tx.From, tx.To)
}

func TestDeterministicAcrossRuns(t *testing.T) {
	a := newGen(99).RandomTx(5, 1000, 0)
	b := newGen(99).RandomTx(5, 1000, 0)
	require.Equal(t, a, b)
}

func TestHashesUniqueWithinBlock(t *testing.T) {
	g := newGen(3)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		tx := g.RandomTx(9, 2000, i)
		require.False(t, seen[tx.Hash], "duplicate hash at index %d", i)
		seen[tx.Hash] = true
	}
}
