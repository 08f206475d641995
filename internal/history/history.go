// Package history keeps the rolling per-instrument candle window every
// poller appends to and every filter evaluation reads from.
package history

import (
	"fmt"
	"sync"

	"candlecore/internal/kline"

	"github.com/shopspring/decimal"
)

// Capacity is the maximum number of candles kept per instrument. Once full,
// appending a new candle evicts the oldest.
const Capacity = 2000

// RollingHistory is a fixed-capacity, single-writer/multi-reader ring of
// candles for one instrument, ordered oldest-to-newest by CloseTime.
type RollingHistory struct {
	mu      sync.RWMutex
	candles []kline.KLine
}

// New returns an empty RollingHistory.
func New() *RollingHistory {
	return &RollingHistory{candles: make([]kline.KLine, 0, Capacity)}
}

// Append adds a new candle. Candles must arrive in strictly increasing
// CloseTime order (the poller guarantees this via its lastClosedSeen
// high-water mark); Append rejects anything that would violate ordering
// rather than silently corrupting the window.
func (h *RollingHistory) Append(k kline.KLine) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.candles); n > 0 && k.CloseTime <= h.candles[n-1].CloseTime {
		return fmt.Errorf("history: candle out of order: last closeTime=%d next=%d", h.candles[n-1].CloseTime, k.CloseTime)
	}

	if len(h.candles) == Capacity {
		copy(h.candles, h.candles[1:])
		h.candles[Capacity-1] = k
		return nil
	}
	h.candles = append(h.candles, k)
	return nil
}

// Tail returns up to n of the most recent candles, oldest first. It always
// returns a copy; callers may not observe or retain a reference into the
// internal buffer.
func (h *RollingHistory) Tail(n int) []kline.KLine {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || len(h.candles) == 0 {
		return nil
	}
	if n > len(h.candles) {
		n = len(h.candles)
	}
	out := make([]kline.KLine, n)
	copy(out, h.candles[len(h.candles)-n:])
	return out
}

// LastClose returns the most recently appended candle's CloseTime, and
// false if the history is still empty.
func (h *RollingHistory) LastClose() (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.candles) == 0 {
		return 0, false
	}
	return h.candles[len(h.candles)-1].CloseTime, true
}

// Len reports how many candles are currently held.
func (h *RollingHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.candles)
}

// MeanQuoteVolume averages the QuoteVolume of the windowN candles
// preceding the most recent one (the candle that just triggered a
// VOLUME_DELTA evaluation is never included in its own baseline). With
// fewer than windowN preceding candles it averages the ones available;
// it returns zero when there is no preceding candle at all.
func (h *RollingHistory) MeanQuoteVolume(windowN int) decimal.Decimal {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.candles)
	if windowN <= 0 || n < 2 {
		return decimal.Zero
	}
	// exclude the last candle (the trigger); average the windowN before it
	available := n - 1
	if windowN > available {
		windowN = available
	}
	if windowN == 0 {
		return decimal.Zero
	}
	start := available - windowN
	sum := decimal.Zero
	for i := start; i < available; i++ {
		sum = sum.Add(h.candles[i].QuoteVolume)
	}
	return sum.Div(decimal.NewFromInt(int64(windowN)))
}
