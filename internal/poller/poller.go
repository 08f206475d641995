// Package poller drives one venue/symbol/interval's IDLE -> REQUESTING ->
// COOLDOWN loop: fetch, append to history, notify the detector, sleep, repeat.
package poller

import (
	"context"
	"math"
	"math/rand"
	"time"

	"candlecore/internal/history"
	"candlecore/internal/kline"
	"candlecore/internal/logger"
	"candlecore/internal/venue"
)

const (
	// shortBackoffBase is added to the interval (plus jitter up to one
	// interval) after a transport or parse failure.
	shortBackoffBase = 60 * time.Second

	// longBackoff follows a server-side rejection or throttle (HTTP
	// status >= 400), or a cancelled in-flight request.
	longBackoff = 10 * time.Minute

	// requestPadding is added to the computed candle count so a poller
	// waking up slightly late never under-requests.
	requestPadding = 10
)

// NewCandleFunc is called once per newly appended, closed candle. The
// detector registers one of these per poller to drive anomaly evaluation.
type NewCandleFunc func(kline.KLine)

// Poller owns the fetch/backoff state machine for one instrument.
type Poller struct {
	id      kline.InstrumentId
	adapter venue.Adapter
	hist    *history.RollingHistory
	log     logger.Logger
	onNew   NewCandleFunc

	lastClosedSeen int64
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// New constructs a Poller. lastClose seeds the high-water mark — pass 0 to
// start from whatever history the venue still retains.
func New(id kline.InstrumentId, adapter venue.Adapter, hist *history.RollingHistory, log logger.Logger, onNew NewCandleFunc, lastClose int64) *Poller {
	return &Poller{
		id:             id,
		adapter:        adapter,
		hist:           hist,
		log:            log,
		onNew:          onNew,
		lastClosedSeen: lastClose,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Run blocks, driving the fetch loop until ctx is cancelled or Stop is
// called. Cancellation is observed at the next suspension point (the
// cooldown or backoff sleep, or the in-flight fetch's own context).
func (p *Poller) Run(ctx context.Context) {
	defer close(p.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		candles, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("poller fetch failed", "instrument", p.id.String(), "error", err)
			if !p.sleep(ctx, p.backoffFor(err)) {
				return
			}
			continue
		}

		for _, c := range candles {
			if c.CloseTime <= p.lastClosedSeen {
				continue // already-seen tail overlap from the padded request window
			}
			if err := p.hist.Append(c); err != nil {
				p.log.Error("poller append rejected", "instrument", p.id.String(), "error", err)
				continue
			}
			p.lastClosedSeen = c.CloseTime
			if p.onNew != nil {
				p.onNew(c)
			}
		}

		if !p.sleep(ctx, 2*p.id.Interval.Duration()) {
			return
		}
	}
}

// Stop signals Run to return at its next suspension point and blocks until
// it has.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

func (p *Poller) fetch(ctx context.Context) ([]kline.KLine, error) {
	limit := p.requestSize()
	return p.adapter.FetchKLines(ctx, venue.FetchRequest{
		Symbol:   p.id.Symbol,
		Interval: p.id.Interval,
		Since:    p.lastClosedSeen,
		Limit:    limit,
	})
}

// requestSize computes how many candles to ask for: enough to cover the
// gap since lastClosedSeen plus a fixed padding, capped at the adapter's
// page size.
func (p *Poller) requestSize() int {
	if p.lastClosedSeen == 0 {
		return p.adapter.PageLimit()
	}
	intervalMs := p.id.Interval.Milliseconds()
	if intervalMs <= 0 {
		return p.adapter.PageLimit()
	}
	elapsed := time.Now().UnixMilli() - p.lastClosedSeen
	count := int(math.Ceil(float64(elapsed)/float64(intervalMs))) + requestPadding
	if count < 1 {
		count = 1
	}
	if count > p.adapter.PageLimit() {
		count = p.adapter.PageLimit()
	}
	return count
}

func (p *Poller) backoffFor(err error) time.Duration {
	if venue.IsThrottleOrReject(err) {
		return longBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(p.id.Interval.Duration()) + 1))
	return shortBackoffBase + p.id.Interval.Duration() + jitter
}

// sleep waits for d, returning false if ctx or Stop fired first.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.stopCh:
		return false
	case <-t.C:
		return true
	}
}
