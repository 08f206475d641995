package detector

import (
	"fmt"

	"candlecore/internal/history"
	"candlecore/internal/kline"

	"github.com/shopspring/decimal"
)

// Evaluate applies filter to the triggering candle, consulting hist for
// any baseline the filter kind needs. The reserved OrderBookDepth kind
// always returns (false, nil); a kind it does not recognize returns an
// error.
func Evaluate(f kline.Filter, triggering kline.KLine, hist *history.RollingHistory) (bool, error) {
	switch f.Kind {
	case kline.FilterDelta:
		return evaluateDelta(f, triggering)
	case kline.FilterVolumeDelta:
		return evaluateVolumeDelta(f, triggering, hist)
	case kline.FilterOrderBookDepth:
		return false, nil
	default:
		return false, fmt.Errorf("detector: unknown filter kind %q", f.Kind)
	}
}

// evaluateDelta fires when the candle's intra-candle range, expressed as a
// fraction of the low price, falls within [Min, Max].
func evaluateDelta(f kline.Filter, k kline.KLine) (bool, error) {
	if k.Low.IsZero() {
		return false, fmt.Errorf("detector: zero low price, cannot compute delta")
	}
	delta := k.High.Sub(k.Low).Div(k.Low)
	return withinRange(delta, f.Min, f.Max), nil
}

// evaluateVolumeDelta fires when the candle's quote volume, normalized
// against the mean quote volume of the preceding kline.VolumeDeltaMeanWindow
// candles in the same instrument's history, falls within [Min, Max]. With
// no baseline yet available, it never fires.
func evaluateVolumeDelta(f kline.Filter, k kline.KLine, hist *history.RollingHistory) (bool, error) {
	mean := hist.MeanQuoteVolume(kline.VolumeDeltaMeanWindow)
	if mean.IsZero() {
		return false, nil
	}
	ratio := k.QuoteVolume.Div(mean)
	return withinRange(ratio, f.Min, f.Max), nil
}

func withinRange(v, min, max decimal.Decimal) bool {
	return v.GreaterThanOrEqual(min) && v.LessThanOrEqual(max)
}
