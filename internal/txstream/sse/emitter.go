package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/hub"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

type EmitterConfig struct {
	EventName   string        // named event for batch frames
	KeepAlive   time.Duration // idle timeout before a keep-alive comment
	BatchWindow time.Duration // accumulation window after the first item
	MaxBatch    int           // hard cap on items per frame
}

func (c EmitterConfig) withDefaults() EmitterConfig {
	if c.EventName == "" {
		c.EventName = "new_transactions_batch"
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 20 * time.Second
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = 50 * time.Millisecond
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 150
	}
	return c
}

// RunEmitter turns one subscriber queue into a text/event-stream sequence:
// it blocks on the queue up to KeepAlive (emitting a comment frame when idle),
// and on the first item keeps collecting until BatchWindow elapses or MaxBatch
// is hit, then flushes the whole batch as a single named event.
//
// Returns nil when done is closed (client disconnect / server shutdown) or
// when the subscription's queue is closed.
func RunEmitter(done <-chan struct{}, sub *hub.Subscription, w io.Writer, flush func(), cfg EmitterConfig) error {
	cfg = cfg.withDefaults()

	keepAlive := time.NewTimer(cfg.KeepAlive)
	defer keepAlive.Stop()

	lastBatch := time.Now()

	for {
		// Wait for the first item of the next batch.
		select {
		case <-done:
			return nil

		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return err
			}
			flush()
			keepAlive.Reset(cfg.KeepAlive)

		case first, ok := <-sub.C():
			if !ok {
				return nil
			}
			batch, err := collectBatch(done, sub, first, cfg)
			if err != nil {
				return err
			}
			if err := writeBatch(w, cfg.EventName, batch, time.Since(lastBatch)); err != nil {
				return err
			}
			flush()
			lastBatch = time.Now()

			if !keepAlive.Stop() {
				select {
				case <-keepAlive.C:
				default:
				}
			}
			keepAlive.Reset(cfg.KeepAlive)
		}
	}
}

// collectBatch gathers queued items behind `first` until the batch window
// closes or the cap is reached. Queue order is preserved.
func collectBatch(done <-chan struct{}, sub *hub.Subscription, first model.Tx, cfg EmitterConfig) ([]model.Tx, error) {
	batch := make([]model.Tx, 0, cfg.MaxBatch)
	batch = append(batch, first)

	window := time.NewTimer(cfg.BatchWindow)
	defer window.Stop()

	for len(batch) < cfg.MaxBatch {
		select {
		case <-done:
			return batch, nil
		case <-window.C:
			return batch, nil
		case tx, ok := <-sub.C():
			if !ok {
				return batch, nil
			}
			batch = append(batch, tx)
		}
	}
	return batch, nil
}

func writeBatch(w io.Writer, event string, batch []model.Tx, sinceLast time.Duration) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}

	tps := 0.0
	if s := sinceLast.Seconds(); s > 0 {
		tps = float64(len(batch)) / s
	}
	log.Printf("[sse] batch: txs=%d latest_block=%d tps=%.1f",
		len(batch), batch[len(batch)-1].BlockNumber, tps)
	return nil
}
