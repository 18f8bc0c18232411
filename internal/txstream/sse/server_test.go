package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/hub"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/ingest"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/model"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/source"
)

// An ingestor that never ran reports not ready.
func newIdleIngestor() *ingest.Ingestor {
	return ingest.New(ingest.Config{}, nil, hub.New(10))
}

// stubSource answers height queries and returns empty ranges; the test
// publishes to the hub directly.
type stubSource struct {
	height int64
}

func (s *stubSource) Height(ctx context.Context) (int64, error) {
	return s.height, nil
}

func (s *stubSource) Range(ctx context.Context, from, to int64) (source.RangeResult, error) {
	return source.RangeResult{}, nil
}

func txWith(hash string, block int64) model.Tx {
	return model.Tx{Hash: hash, BlockNumber: block, Value: "0x1"}
}

func contextWithCancel() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

func TestStreamRejectedWhenNotReady(t *testing.T) {
	srv := NewServer(hub.New(10), newIdleIngestor(), EmitterConfig{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/transaction-stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthzReflectsReadiness(t *testing.T) {
	srv := NewServer(hub.New(10), newIdleIngestor(), EmitterConfig{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	h := hub.New(10)
	srv := NewServer(h, newIdleIngestor(), EmitterConfig{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "web3-txstream", status["service"])
	assert.Equal(t, false, status["ready"])
}

func TestStreamDeliversBatchesOverHTTP(t *testing.T) {
	// A live ingestor backed by a canned source makes the server ready.
	src := &stubSource{height: 1000}
	h := hub.New(100)
	ig := ingest.New(ingest.Config{BootstrapLookback: 5}, src, h)

	ctx, cancelRun := contextWithCancel()
	defer cancelRun()
	go func() { _ = ig.Run(ctx) }()
	require.Eventually(t, ig.Ready, time.Second, 5*time.Millisecond)

	cfg := EmitterConfig{KeepAlive: time.Second, BatchWindow: 20 * time.Millisecond, MaxBatch: 50}
	ts := httptest.NewServer(NewServer(h, ig, cfg).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/transaction-stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	h.Publish(txWith("0xaaa", 996))
	h.Publish(txWith("0xbbb", 997))

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(2 * time.Second)
	var eventLine, dataLine string
	for dataLine == "" {
		select {
		case <-deadline:
			t.Fatal("no batch frame received")
		default:
		}
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = line
		case strings.HasPrefix(line, "data: "):
			dataLine = line
		}
	}
	assert.Equal(t, "event: new_transactions_batch", eventLine)

	var batch []map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &batch))
	require.NotEmpty(t, batch)
	assert.Equal(t, "0xaaa", batch[0]["hash"])
}
