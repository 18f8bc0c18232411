package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-txstream/internal/mocknode/model"
	"github.com/chenzhangda16/web3-txstream/internal/mocknode/store"
	core "github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

type memStore struct {
	head   int64
	blocks map[int64][]byte
}

func (m *memStore) Head() (int64, error) { return m.head, nil }

func (m *memStore) GetBlockRaw(n int64) ([]byte, error) {
	raw, ok := m.blocks[n]
	if !ok {
		return nil, store.ErrNotFound
	}
	return raw, nil
}

// chainOf builds a store holding blocks 1..head with one tx per block.
func chainOf(t *testing.T, head int64) *memStore {
	t.Helper()
	ms := &memStore{head: head, blocks: map[int64][]byte{}}
	for n := int64(1); n <= head; n++ {
		blk := model.Build(n, 1_700_000_000+n, []core.Tx{{
			Hash:        fmt.Sprintf("0x%06x", n),
			BlockNumber: n,
			Value:       "0x1",
		}})
		raw, err := model.EncodeBlock(blk)
		require.NoError(t, err)
		ms.blocks[n] = raw
	}
	return ms
}

type queryOut struct {
	Data struct {
		Transactions []core.Tx `json:"transactions"`
	} `json:"data"`
	NextBlock     int64 `json:"next_block"`
	ArchiveHeight int64 `json:"archive_height"`
}

func doQuery(t *testing.T, ts *httptest.Server, from, to int64) (*http.Response, queryOut) {
	t.Helper()
	body, _ := json.Marshal(map[string]int64{"from_block": from, "to_block": to})
	resp, err := http.Post(ts.URL+"/query", "application/json", bytes.NewReader(body))
	require.NoError(t, err)

	var out queryOut
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	resp.Body.Close()
	return resp, out
}

func TestHeightEndpoint(t *testing.T) {
	ts := httptest.NewServer(NewServer(chainOf(t, 7)).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/height")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(7), out["height"])
}

func TestQueryFromZeroScansWholeChain(t *testing.T) {
	// A consumer whose lookback exceeds the chain height bootstraps at
	// block 0; that query must succeed and stream the chain from block 1.
	ts := httptest.NewServer(NewServer(chainOf(t, 3)).Handler())
	defer ts.Close()

	resp, out := doQuery(t, ts, 0, 100)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Data.Transactions, 3)
	assert.Equal(t, int64(1), out.Data.Transactions[0].BlockNumber)
	assert.Equal(t, int64(4), out.NextBlock)
	assert.Equal(t, int64(3), out.ArchiveHeight)
}

func TestQueryClampsToHead(t *testing.T) {
	ts := httptest.NewServer(NewServer(chainOf(t, 5)).Handler())
	defer ts.Close()

	resp, out := doQuery(t, ts, 4, 100)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Data.Transactions, 2)
	assert.Equal(t, int64(6), out.NextBlock)
}

func TestQueryPastHeadMakesNoProgress(t *testing.T) {
	ts := httptest.NewServer(NewServer(chainOf(t, 5)).Handler())
	defer ts.Close()

	resp, out := doQuery(t, ts, 9, 12)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, out.Data.Transactions)
	assert.Equal(t, int64(9), out.NextBlock)
}

func TestQueryRejectsBadRanges(t *testing.T) {
	ts := httptest.NewServer(NewServer(chainOf(t, 5)).Handler())
	defer ts.Close()

	resp, _ := doQuery(t, ts, -1, 3)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doQuery(t, ts, 5, 2)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
