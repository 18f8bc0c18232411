package ingest

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/dedup"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/frontier"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/hub"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/model"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/retry"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/source"
)

type Config struct {
	BootstrapLookback int64 // start this many blocks behind the remote tip
	DedupCapacity     int
	ErrorBackoff      time.Duration // fixed delay after a failed range query
	Frontier          frontier.Config
}

func (c Config) withDefaults() Config {
	if c.BootstrapLookback <= 0 {
		c.BootstrapLookback = 200
	}
	if c.DedupCapacity <= 0 {
		c.DedupCapacity = 20000
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	return c
}

// The loop is an explicit state machine: Idle decides on a tip refresh,
// Fetching issues the range query, Processing filters and broadcasts,
// Sleeping paces the next iteration. It has no terminal state; it runs
// until ctx is cancelled.
type state int

const (
	stateIdle state = iota
	stateFetching
	stateProcessing
	stateSleeping
)

// Stats is a read-only snapshot for the status surface. Safe to read from
// any goroutine.
type Stats struct {
	Ready         bool  `json:"ready"`
	NextFetchFrom int64 `json:"next_fetch_from"`
	Tip           int64 `json:"tip"`
	TxAccepted    int64 `json:"tx_accepted"`
	TxDuplicate   int64 `json:"tx_duplicate"`
}

// Ingestor drives the frontier tracker, the remote client and the dedup
// cache in a continuous cycle and broadcasts newly seen transactions.
// Tracker and cache are single-writer: only Run's goroutine touches them.
type Ingestor struct {
	cfg     Config
	src     source.Client
	hub     *hub.Hub
	tracker *frontier.Tracker
	cache   *dedup.Cache

	ready     atomic.Bool
	nextFrom  atomic.Int64
	tip       atomic.Int64
	accepted  atomic.Int64
	duplicate atomic.Int64
}

func New(cfg Config, src source.Client, h *hub.Hub) *Ingestor {
	cfg = cfg.withDefaults()
	return &Ingestor{
		cfg:   cfg,
		src:   src,
		hub:   h,
		cache: dedup.New(cfg.DedupCapacity),
	}
}

// Ready reports whether the loop has bootstrapped and is polling.
func (ig *Ingestor) Ready() bool { return ig.ready.Load() }

func (ig *Ingestor) Stats() Stats {
	return Stats{
		Ready:         ig.ready.Load(),
		NextFetchFrom: ig.nextFrom.Load(),
		Tip:           ig.tip.Load(),
		TxAccepted:    ig.accepted.Load(),
		TxDuplicate:   ig.duplicate.Load(),
	}
}

func (ig *Ingestor) Run(ctx context.Context) error {
	tip, err := ig.bootstrapTip(ctx)
	if err != nil {
		return err
	}

	startFrom := tip - ig.cfg.BootstrapLookback
	if startFrom < 0 {
		startFrom = 0
	}
	ig.tracker = frontier.NewTracker(ig.cfg.Frontier, startFrom, tip)
	ig.publishSnapshot()

	ig.ready.Store(true)
	defer ig.ready.Store(false)

	log.Printf("[ingest] start: from=%d tip=%d lookback=%d", startFrom, tip, ig.cfg.BootstrapLookback)

	var (
		st       = stateIdle
		res      source.RangeResult
		from, to int64
		interval time.Duration
		sleepFor time.Duration
		iter     uint64
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch st {
		case stateIdle:
			if ig.tracker.ShouldRefreshTip() {
				if h, err := ig.src.Height(ctx); err != nil {
					log.Printf("[ingest] tip refresh err: %v", err)
				} else {
					ig.tracker.RecordTip(h)
				}
			}
			st = stateFetching

		case stateFetching:
			from, to, interval = ig.tracker.NextQueryRange()
			res, err = ig.src.Range(ctx, from, to)
			if err != nil {
				// Frontier stays put so the same range is retried.
				log.Printf("[ingest] range err: from=%d to=%d err=%v", from, to, err)
				sleepFor = ig.cfg.ErrorBackoff
				st = stateSleeping
				continue
			}
			st = stateProcessing

		case stateProcessing:
			accepted := ig.process(res.Txs)
			ig.tracker.RecordFetchResult(res.HighestBlock, accepted)
			ig.publishSnapshot()

			iter++
			if accepted > 0 || iter%100 == 0 {
				log.Printf("[ingest] iter=%d mode=%s from=%d to=%d txs=%d accepted=%d tip=%d",
					iter, ig.tracker.Mode(), from, to, len(res.Txs), accepted, ig.tracker.Tip())
			}

			sleepFor = interval
			st = stateSleeping

		case stateSleeping:
			timer := time.NewTimer(sleepFor)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			st = stateIdle
		}
	}
}

// process filters one response batch through the dedup cache and broadcasts
// the survivors, returning the count of newly accepted items. A malformed
// item is skipped without stalling the rest of the batch.
func (ig *Ingestor) process(txs []model.Tx) int {
	accepted := 0
	for _, tx := range txs {
		if tx.Hash == "" || tx.BlockNumber <= 0 {
			log.Printf("[ingest] skipping malformed tx: hash=%q block=%d", tx.Hash, tx.BlockNumber)
			continue
		}
		if ig.cache.Seen(tx.Hash) {
			ig.duplicate.Add(1)
			continue
		}
		ig.cache.Record(tx.Hash)
		ig.hub.Publish(tx)
		accepted++
	}
	ig.accepted.Add(int64(accepted))
	return accepted
}

// bootstrapTip blocks until the remote answers a height query. Unavailable
// remotes are retried forever; only cancellation gets us out.
func (ig *Ingestor) bootstrapTip(ctx context.Context) (int64, error) {
	var tip int64
	for {
		err := retry.Do(ctx, retry.Policy{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			OnRetry: func(attempt int, wait time.Duration, err error) {
				log.Printf("[ingest] bootstrap height attempt=%d wait=%s err=%v", attempt, wait, err)
			},
		}, func(ctx context.Context) error {
			h, err := ig.src.Height(ctx)
			if err != nil {
				return err
			}
			tip = h
			return nil
		})
		if err == nil {
			return tip, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		log.Printf("[ingest] bootstrap still failing, backing off: %v", err)
		timer := time.NewTimer(ig.cfg.ErrorBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}

func (ig *Ingestor) publishSnapshot() {
	ig.nextFrom.Store(ig.tracker.NextFetchFrom())
	ig.tip.Store(ig.tracker.Tip())
}
