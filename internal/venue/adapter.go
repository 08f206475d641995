// Package venue adapts each exchange's public REST kline API into the
// canonical kline.KLine shape, hiding per-venue JSON quirks behind one
// interface the poller drives identically for every venue.
package venue

import (
	"context"
	"fmt"

	"candlecore/internal/kline"
)

// Instrument is one symbol a venue's discovery endpoint advertises.
type Instrument struct {
	Symbol string
}

// FetchRequest asks an adapter for candles at or after Since (the
// caller's lastClosedSeen high-water mark). Limit is advisory; an adapter
// caps it at its own page size.
type FetchRequest struct {
	Symbol   string
	Interval kline.Interval
	Since    int64 // epoch ms; 0 means "from the beginning of what the venue retains"
	Limit    int
}

// Adapter is the per-venue contract the Poller drives.
type Adapter interface {
	// Name is the canonical venue identifier used in InstrumentId and logs.
	Name() string

	// DiscoverInstruments lists the adapter's fixed symbol list, or every
	// tradable symbol the venue advertises when that list is empty. The
	// KLineNames prefix filter is not applied here; runtime.Supervisor
	// applies it to the result.
	DiscoverInstruments(ctx context.Context) ([]Instrument, error)

	// FetchKLines returns every closed candle in (req.Since, now], oldest
	// first, with the venue's still-open trailing candle discarded.
	FetchKLines(ctx context.Context, req FetchRequest) ([]kline.KLine, error)

	// PageLimit is the maximum candles this venue returns per request.
	PageLimit() int
}

// HTTPStatusError carries the venue's HTTP status code so the Poller can
// tell a rejected/throttled request (long backoff) apart from a transient
// transport failure (short backoff).
type HTTPStatusError struct {
	Venue  string
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("venue %s: http status %d", e.Venue, e.Status)
}

// IsThrottleOrReject reports whether err represents a server-side
// rejection (status >= 400) warranting the Poller's long backoff.
func IsThrottleOrReject(err error) bool {
	var httpErr *HTTPStatusError
	if statusErr, ok := err.(*HTTPStatusError); ok {
		httpErr = statusErr
	} else {
		return false
	}
	return httpErr.Status >= 400
}
