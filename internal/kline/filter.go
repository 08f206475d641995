package kline

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FilterKind names the anomaly test a Filter applies to each new candle.
type FilterKind string

const (
	// FilterDelta fires when (high-low)/low, the candle's intra-candle
	// range fraction, falls within [Min, Max].
	FilterDelta FilterKind = "Delta"

	// FilterVolumeDelta fires when the triggering candle's quote volume,
	// normalized against the mean of the preceding 20 quote volumes in
	// the same instrument's history, falls within [Min, Max].
	FilterVolumeDelta FilterKind = "VolumeDelta"

	// FilterOrderBookDepth is reserved for a future order-book-depth
	// anomaly test. The detector accepts it in a UserConfig without
	// error but never evaluates it — no adapter in this service
	// collects order book data.
	FilterOrderBookDepth FilterKind = "OrderBookDepth"
)

// VolumeDeltaMeanWindow is how many preceding candles VolumeDelta's mean
// quote volume baseline is computed over.
const VolumeDeltaMeanWindow = 20

// Filter is one anomaly rule a session asks the detector to evaluate
// against every instrument matching Interval within a venue it has
// subscribed to (see UserConfig.SubscribedVenues). SymbolInclude/Exclude
// narrow that match to particular symbols; both empty means every symbol
// on a subscribed venue is evaluated.
type Filter struct {
	Kind     FilterKind
	Min      decimal.Decimal
	Max      decimal.Decimal
	Interval Interval

	SymbolInclude []string
	SymbolExclude []string
}

// Matches reports whether symbol passes this filter's include/exclude
// lists. An empty SymbolInclude accepts every symbol not explicitly
// excluded.
func (f Filter) Matches(symbol string) bool {
	for _, s := range f.SymbolExclude {
		if s == symbol {
			return false
		}
	}
	if len(f.SymbolInclude) == 0 {
		return true
	}
	for _, s := range f.SymbolInclude {
		if s == symbol {
			return true
		}
	}
	return false
}

// Validate rejects a filter a client could not possibly have meant,
// surfaced to the query facade as a BAD_REQUEST.
func (f Filter) Validate() error {
	switch f.Kind {
	case FilterDelta, FilterVolumeDelta, FilterOrderBookDepth:
	default:
		return fmt.Errorf("filter: unknown kind %q", f.Kind)
	}
	if f.Kind != FilterOrderBookDepth && !f.Interval.Valid() {
		return fmt.Errorf("filter: invalid interval %q", f.Interval)
	}
	if f.Min.IsNegative() {
		return fmt.Errorf("filter: negative min %s", f.Min)
	}
	if f.Max.LessThan(f.Min) {
		return fmt.Errorf("filter: max %s below min %s", f.Max, f.Min)
	}
	return nil
}

// UserConfig is the full set of filters a session evaluates, and the
// venues it subscribes to. An empty SubscribedVenues subscribes to every
// venue (the default for a freshly created account). Replacing UserConfig
// (via the /config endpoint) clears whatever DetectEvents were pending,
// per the registry's determinism rule: a session never sees a detection
// produced under a configuration it has since replaced.
type UserConfig struct {
	Filters          []Filter
	SubscribedVenues []string
}

// SubscribesTo reports whether this config watches venue.
func (c UserConfig) SubscribesTo(venue string) bool {
	if len(c.SubscribedVenues) == 0 {
		return true
	}
	for _, v := range c.SubscribedVenues {
		if v == venue {
			return true
		}
	}
	return false
}

// DetectEvent is one anomaly match queued to a session's mailbox.
type DetectEvent struct {
	Instrument  InstrumentId
	Filter      Filter
	Triggering  KLine
	HistoryTail []KLine // last ~20 candles of the triggering instrument's own history, oldest first
	ReviewTail  []KLine // tail of the symbol's MIN5 history on the same venue, oldest first
	DetectedAt  time.Time
}
