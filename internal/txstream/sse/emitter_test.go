package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/hub"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

// syncBuffer lets the test read frames while the emitter goroutine writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func tx(i int) model.Tx {
	return model.Tx{Hash: fmt.Sprintf("0x%06x", i), BlockNumber: int64(100 + i)}
}

func startEmitter(t *testing.T, sub *hub.Subscription, cfg EmitterConfig) (*syncBuffer, chan struct{}, chan error) {
	t.Helper()
	buf := &syncBuffer{}
	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunEmitter(done, sub, buf, func() {}, cfg)
	}()
	return buf, done, errCh
}

// parse splits the raw stream into frames (separated by blank lines).
func frames(raw string) []string {
	var out []string
	for _, f := range strings.Split(raw, "\n\n") {
		if strings.TrimSpace(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

func TestKeepAliveEmittedOnlyWhenIdle(t *testing.T) {
	h := hub.New(10)
	sub, cancel := h.Subscribe()
	defer cancel()

	cfg := EmitterConfig{KeepAlive: 60 * time.Millisecond, BatchWindow: 5 * time.Millisecond, MaxBatch: 10}
	buf, done, errCh := startEmitter(t, sub, cfg)

	// Before the keep-alive timeout: nothing at all on the wire.
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, buf.String())

	// After the timeout: exactly one keep-alive comment.
	time.Sleep(50 * time.Millisecond)
	got := frames(buf.String())
	require.Len(t, got, 1)
	assert.Equal(t, ": keep-alive", got[0])

	close(done)
	require.NoError(t, <-errCh)
}

func TestBatchFrameFormat(t *testing.T) {
	h := hub.New(10)
	sub, cancel := h.Subscribe()
	defer cancel()

	cfg := EmitterConfig{KeepAlive: time.Second, BatchWindow: 20 * time.Millisecond, MaxBatch: 10}
	buf, done, errCh := startEmitter(t, sub, cfg)

	h.Publish(tx(1))
	h.Publish(tx(2))
	time.Sleep(60 * time.Millisecond)

	got := frames(buf.String())
	require.Len(t, got, 1)
	lines := strings.SplitN(got[0], "\n", 2)
	require.Len(t, lines, 2)
	assert.Equal(t, "event: new_transactions_batch", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "data: "))

	var batch []model.Tx
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &batch))
	require.Len(t, batch, 2)
	assert.Equal(t, tx(1).Hash, batch[0].Hash)
	assert.Equal(t, tx(2).Hash, batch[1].Hash)

	close(done)
	require.NoError(t, <-errCh)
}

func TestBatchCappedAtMaxBatch(t *testing.T) {
	h := hub.New(500)
	sub, cancel := h.Subscribe()
	defer cancel()

	// Fill the queue before the emitter starts so the first batch sees a
	// backlog far above the cap.
	for i := 0; i < 200; i++ {
		h.Publish(tx(i))
	}

	cfg := EmitterConfig{KeepAlive: time.Second, BatchWindow: 50 * time.Millisecond, MaxBatch: 150}
	buf, done, errCh := startEmitter(t, sub, cfg)

	time.Sleep(150 * time.Millisecond)

	got := frames(buf.String())
	require.GreaterOrEqual(t, len(got), 2)

	var first, second []model.Tx
	require.NoError(t, json.Unmarshal(dataOf(t, got[0]), &first))
	require.NoError(t, json.Unmarshal(dataOf(t, got[1]), &second))
	assert.Len(t, first, 150)
	assert.Len(t, second, 50)
	// Items preserved across the split in order.
	assert.Equal(t, tx(149).Hash, first[149].Hash)
	assert.Equal(t, tx(150).Hash, second[0].Hash)

	close(done)
	require.NoError(t, <-errCh)
}

func TestOrderWithinBatchNonDecreasing(t *testing.T) {
	h := hub.New(100)
	sub, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < 30; i++ {
		h.Publish(tx(i))
	}

	cfg := EmitterConfig{KeepAlive: time.Second, BatchWindow: 30 * time.Millisecond, MaxBatch: 100}
	buf, done, errCh := startEmitter(t, sub, cfg)
	time.Sleep(80 * time.Millisecond)

	got := frames(buf.String())
	require.NotEmpty(t, got)
	var batch []model.Tx
	require.NoError(t, json.Unmarshal(dataOf(t, got[0]), &batch))
	for i := 1; i < len(batch); i++ {
		require.GreaterOrEqual(t, batch[i].BlockNumber, batch[i-1].BlockNumber)
	}

	close(done)
	require.NoError(t, <-errCh)
}

func TestEmitterStopsWhenQueueClosed(t *testing.T) {
	h := hub.New(10)
	sub, cancel := h.Subscribe()

	cfg := EmitterConfig{KeepAlive: time.Second, BatchWindow: 5 * time.Millisecond, MaxBatch: 10}
	_, _, errCh := startEmitter(t, sub, cfg)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("emitter did not stop after queue close")
	}
}

func dataOf(t *testing.T, frame string) []byte {
	t.Helper()
	for _, line := range strings.Split(frame, "\n") {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: "))
		}
	}
	t.Fatalf("frame has no data line: %q", frame)
	return nil
}
