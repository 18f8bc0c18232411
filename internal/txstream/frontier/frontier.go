package frontier

import "time"

type Mode int

const (
	CatchingUp Mode = iota
	NearTip
)

func (m Mode) String() string {
	if m == CatchingUp {
		return "catching_up"
	}
	return "near_tip"
}

// Config collects every tuning knob in one place so tests can inject
// fixed values instead of fighting scattered literals.
type Config struct {
	NearTipOffset   int64 // acceptable lag before we count as caught up
	MaxCatchUpBatch int64 // blocks per query while catching up
	MinTipRange     int64 // near-tip query width floor (adaptive)
	MaxTipRange     int64 // near-tip query width ceiling

	CatchUpInterval time.Duration // poll pacing while draining backlog
	NearTipInterval time.Duration // poll pacing at the tip

	TipRefreshEvery    time.Duration // max age of the cached tip
	EmptyBeforeRefresh int           // consecutive empty queries forcing a refresh
	EmptyBeforeShrink  int           // consecutive empty queries before narrowing tipRange
}

func (c Config) withDefaults() Config {
	if c.NearTipOffset <= 0 {
		c.NearTipOffset = 3
	}
	if c.MaxCatchUpBatch <= 0 {
		c.MaxCatchUpBatch = 100
	}
	if c.MinTipRange <= 0 {
		c.MinTipRange = 2
	}
	if c.MaxTipRange < c.MinTipRange {
		c.MaxTipRange = 32
	}
	if c.CatchUpInterval <= 0 {
		c.CatchUpInterval = 40 * time.Millisecond
	}
	if c.NearTipInterval <= 0 {
		c.NearTipInterval = 1 * time.Second
	}
	if c.TipRefreshEvery <= 0 {
		c.TipRefreshEvery = 5 * time.Second
	}
	if c.EmptyBeforeRefresh <= 0 {
		c.EmptyBeforeRefresh = 5
	}
	if c.EmptyBeforeShrink <= 0 {
		c.EmptyBeforeShrink = 3
	}
	return c
}

// Tracker owns the "next block to fetch" cursor and the cached remote tip.
// Single writer: only the ingestion loop touches it.
type Tracker struct {
	cfg Config
	now func() time.Time

	nextFetchFrom int64
	tip           int64
	tipRange      int64

	emptyStreak    int
	lastTipRefresh time.Time
}

// NewTracker starts the cursor at bootstrapFrom against a known remote tip.
func NewTracker(cfg Config, bootstrapFrom, tip int64) *Tracker {
	return newTracker(cfg, bootstrapFrom, tip, time.Now)
}

func newTracker(cfg Config, bootstrapFrom, tip int64, now func() time.Time) *Tracker {
	cfg = cfg.withDefaults()
	if bootstrapFrom < 0 {
		bootstrapFrom = 0
	}
	return &Tracker{
		cfg:            cfg,
		now:            now,
		nextFetchFrom:  bootstrapFrom,
		tip:            tip,
		tipRange:       cfg.MinTipRange,
		lastTipRefresh: now(),
	}
}

func (t *Tracker) Mode() Mode {
	if t.nextFetchFrom < t.tip-t.cfg.NearTipOffset {
		return CatchingUp
	}
	return NearTip
}

func (t *Tracker) NextFetchFrom() int64 { return t.nextFetchFrom }
func (t *Tracker) Tip() int64           { return t.tip }

// NextQueryRange returns the inclusive range to query next and how long to
// sleep after the iteration completes.
func (t *Tracker) NextQueryRange() (from, to int64, interval time.Duration) {
	from = t.nextFetchFrom
	if t.Mode() == CatchingUp {
		to = from + t.cfg.MaxCatchUpBatch - 1
		if to > t.tip {
			to = t.tip
		}
		return from, to, t.cfg.CatchUpInterval
	}
	return from, from + t.tipRange - 1, t.cfg.NearTipInterval
}

// RecordFetchResult advances the cursor past the highest block the remote
// actually scanned. An empty response still moves forward by one block so
// the loop never re-queries the same empty range forever, but never past
// tip+1: drifting beyond the tip would skip blocks mined later. itemCount
// drives the adaptive near-tip width: activity widens the window, idle
// narrows it.
func (t *Tracker) RecordFetchResult(highestBlockSeen int64, itemCount int) {
	if highestBlockSeen >= t.nextFetchFrom {
		t.nextFetchFrom = highestBlockSeen + 1
	} else if t.nextFetchFrom <= t.tip {
		t.nextFetchFrom++
	}

	if itemCount > 0 {
		t.emptyStreak = 0
		t.tipRange *= 2
		if t.tipRange > t.cfg.MaxTipRange {
			t.tipRange = t.cfg.MaxTipRange
		}
		return
	}

	t.emptyStreak++
	if t.emptyStreak >= t.cfg.EmptyBeforeShrink {
		t.tipRange /= 2
		if t.tipRange < t.cfg.MinTipRange {
			t.tipRange = t.cfg.MinTipRange
		}
	}
}

// ShouldRefreshTip throttles remote height calls: refresh when the cursor is
// at or past the cached tip, after a run of empty queries, or when the cached
// value has simply aged out.
func (t *Tracker) ShouldRefreshTip() bool {
	if t.nextFetchFrom >= t.tip {
		return true
	}
	if t.emptyStreak >= t.cfg.EmptyBeforeRefresh {
		return true
	}
	return t.now().Sub(t.lastTipRefresh) >= t.cfg.TipRefreshEvery
}

// RecordTip caches a fresh remote tip. Heights are monotonic: a smaller tip
// is a transient remote anomaly and is ignored.
func (t *Tracker) RecordTip(tip int64) {
	t.lastTipRefresh = t.now()
	t.emptyStreak = 0
	if tip > t.tip {
		t.tip = tip
	}
}
