package kline

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InstrumentId identifies one polled instrument: a symbol on a venue at a
// given interval. Venue and Symbol are always upper-cased by the adapter
// that produced them so map keys and log lines stay stable.
type InstrumentId struct {
	Venue    string
	Symbol   string
	Interval Interval
}

func (id InstrumentId) String() string {
	return fmt.Sprintf("%s:%s:%s", id.Venue, id.Symbol, id.Interval)
}

// KLineId identifies one specific candle within an instrument's history by
// its close time, the field every venue agrees marks a candle as final.
type KLineId struct {
	InstrumentId
	CloseTime int64 // epoch ms
}

// KLine is the canonical candlestick shape every venue adapter normalizes
// into. Prices and volumes are decimal.Decimal so venue-supplied precision
// survives the JSON round trip to the query facade untouched.
type KLine struct {
	Venue     string
	Symbol    string
	Interval  Interval
	OpenTime  int64 // epoch ms, inclusive
	CloseTime int64 // epoch ms, exclusive upper bound of the candle window

	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	QuoteVolume decimal.Decimal
}

// Instrument returns the InstrumentId this candle belongs to.
func (k KLine) Instrument() InstrumentId {
	return InstrumentId{Venue: k.Venue, Symbol: k.Symbol, Interval: k.Interval}
}

// Id returns the KLineId uniquely identifying this candle.
func (k KLine) Id() KLineId {
	return KLineId{InstrumentId: k.Instrument(), CloseTime: k.CloseTime}
}

// Validate rejects a candle an adapter parsed into an internally
// inconsistent shape before it ever reaches the rolling history.
func (k KLine) Validate() error {
	if k.Venue == "" || k.Symbol == "" {
		return fmt.Errorf("kline: missing venue or symbol")
	}
	if !k.Interval.Valid() {
		return fmt.Errorf("kline: invalid interval %q", k.Interval)
	}
	if k.CloseTime <= k.OpenTime {
		return fmt.Errorf("kline: closeTime %d not after openTime %d", k.CloseTime, k.OpenTime)
	}
	if k.High.LessThan(k.Low) {
		return fmt.Errorf("kline: high %s below low %s", k.High, k.Low)
	}
	if k.Open.LessThan(k.Low) || k.Open.GreaterThan(k.High) {
		return fmt.Errorf("kline: open %s outside [low,high]", k.Open)
	}
	if k.Close.LessThan(k.Low) || k.Close.GreaterThan(k.High) {
		return fmt.Errorf("kline: close %s outside [low,high]", k.Close)
	}
	if k.Volume.IsNegative() {
		return fmt.Errorf("kline: negative volume %s", k.Volume)
	}
	return nil
}
