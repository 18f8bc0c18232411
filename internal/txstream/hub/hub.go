package hub

import (
	"log"
	"sync"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

// Hub fans one deduplicated tx stream out to N independent subscribers.
// Every subscriber owns a bounded FIFO queue; Publish never blocks on any of
// them. When a queue is full the newest item is dropped for that subscriber
// only, so one stalled consumer cannot slow down ingestion or its peers.
type Hub struct {
	queueCap int

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64

	dropped uint64
}

// Subscription is one subscriber's private view of the stream: a single
// producer (the hub) and a single consumer (the subscriber's emitter).
type Subscription struct {
	id uint64
	ch chan model.Tx
}

func (s *Subscription) ID() uint64         { return s.id }
func (s *Subscription) C() <-chan model.Tx { return s.ch }
func (s *Subscription) Depth() int         { return len(s.ch) }

func New(queueCap int) *Hub {
	if queueCap <= 0 {
		queueCap = 5000
	}
	return &Hub{
		queueCap: queueCap,
		subs:     make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscriber queue. The cancel func unregisters it
// and closes the queue; releasing it is important, an abandoned subscription
// would silently drop everything published after its queue fills up.
func (h *Hub) Subscribe() (*Subscription, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	sub := &Subscription{id: id, ch: make(chan model.Tx, h.queueCap)}
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}
	return sub, cancel
}

// Publish delivers tx to every live subscriber queue, applying the
// drop-newest overflow policy per queue independently.
func (h *Hub) Publish(tx model.Tx) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		select {
		case sub.ch <- tx:
		default:
			h.dropped++
			log.Printf("[hub] queue full, dropping tx: sub=%d depth=%d hash=%s", id, len(sub.ch), tx.Hash)
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns the total count of overflow drops across all subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
