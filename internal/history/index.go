package history

import (
	"sync/atomic"

	"candlecore/internal/kline"
)

// Index is the process-wide venue -> symbol -> interval lookup of rolling
// histories. Structural changes (a new instrument appearing, an instrument
// being dropped when its venue config no longer filters it in) are rare
// next to the steady stream of per-candle appends, so the index swaps in
// a freshly built map under an atomic pointer rather than taking a lock
// readers would contend on for every query.
type Index struct {
	tables atomic.Pointer[map[kline.InstrumentId]*RollingHistory]
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	idx := &Index{}
	empty := make(map[kline.InstrumentId]*RollingHistory)
	idx.tables.Store(&empty)
	return idx
}

// Get returns the RollingHistory for id, or nil if no poller has ever been
// started for it.
func (idx *Index) Get(id kline.InstrumentId) *RollingHistory {
	m := *idx.tables.Load()
	return m[id]
}

// Ensure returns the RollingHistory for id, creating and registering one
// under a copy-on-write swap if this is the first time id has been seen.
// Safe for concurrent callers; at most one of them performs the swap for a
// given id, the rest observe it afterward.
func (idx *Index) Ensure(id kline.InstrumentId) *RollingHistory {
	if h := idx.Get(id); h != nil {
		return h
	}

	for {
		oldPtr := idx.tables.Load()
		old := *oldPtr
		if h, ok := old[id]; ok {
			return h
		}
		next := make(map[kline.InstrumentId]*RollingHistory, len(old)+1)
		for k, v := range old {
			next[k] = v
		}
		h := New()
		next[id] = h
		if idx.tables.CompareAndSwap(oldPtr, &next) {
			return h
		}
		// lost the race to a concurrent Ensure/Remove; retry
	}
}

// Remove drops id from the index, e.g. when a venue's instrument list no
// longer includes it after a rediscovery cycle.
func (idx *Index) Remove(id kline.InstrumentId) {
	for {
		oldPtr := idx.tables.Load()
		old := *oldPtr
		if _, ok := old[id]; !ok {
			return
		}
		next := make(map[kline.InstrumentId]*RollingHistory, len(old))
		for k, v := range old {
			if k != id {
				next[k] = v
			}
		}
		if idx.tables.CompareAndSwap(oldPtr, &next) {
			return
		}
	}
}

// Instruments returns a snapshot of every instrument currently tracked.
func (idx *Index) Instruments() []kline.InstrumentId {
	m := *idx.tables.Load()
	out := make([]kline.InstrumentId, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
