package detector

import (
	"testing"

	"candlecore/internal/history"
	"candlecore/internal/kline"

	"github.com/shopspring/decimal"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestEvaluateDelta(t *testing.T) {
	// open=100, close=100, high=103, low=100 -> delta = (103-100)/100 = 0.03
	f := kline.Filter{Kind: kline.FilterDelta, Min: d(0.02), Max: d(1.0)}
	k := kline.KLine{Open: d(100), Close: d(100), High: d(103), Low: d(100)}
	matched, err := Evaluate(f, k, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matched {
		t.Error("expected delta 0.03 to match range [0.02,1.0]")
	}

	k2 := kline.KLine{Open: d(100), Close: d(100), High: d(100.5), Low: d(100)}
	matched2, err := Evaluate(f, k2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched2 {
		t.Error("expected delta 0.005 not to match range [0.02,1.0]")
	}
}

func TestEvaluateDelta_AboveMaxDoesNotMatch(t *testing.T) {
	// a 5.0 delta must not match [0.02,1.0] even though it clears the min
	f := kline.Filter{Kind: kline.FilterDelta, Min: d(0.02), Max: d(1.0)}
	k := kline.KLine{Open: d(100), Close: d(100), High: d(600), Low: d(100)}
	matched, err := Evaluate(f, k, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched {
		t.Error("expected delta 5.0 not to match range [0.02,1.0]")
	}
}

func TestEvaluateDelta_ZeroLowIsError(t *testing.T) {
	f := kline.Filter{Kind: kline.FilterDelta, Min: d(0), Max: d(1.0)}
	k := kline.KLine{Open: d(0), Close: d(0), High: d(1), Low: d(0)}
	if _, err := Evaluate(f, k, nil); err == nil {
		t.Error("expected error for zero low price")
	}
}

func TestEvaluateVolumeDelta(t *testing.T) {
	hist := history.New()
	base := int64(60000)
	for i, qv := range []float64{100, 100, 100} {
		_ = hist.Append(kline.KLine{
			Venue: "X", Symbol: "Y", Interval: kline.Interval1m,
			OpenTime: base * int64(i), CloseTime: base * int64(i+1),
			Open: d(1), High: d(1), Low: d(1), Close: d(1),
			Volume: d(1), QuoteVolume: d(qv),
		})
	}
	trigger := kline.KLine{
		Venue: "X", Symbol: "Y", Interval: kline.Interval1m,
		OpenTime: base * 3, CloseTime: base * 4,
		Open: d(1), High: d(1), Low: d(1), Close: d(1),
		Volume: d(1), QuoteVolume: d(500),
	}
	_ = hist.Append(trigger)

	// mean of the 3 preceding candles is 100; 500/100 = 5.0, within [3,10]
	f := kline.Filter{Kind: kline.FilterVolumeDelta, Min: d(3), Max: d(10)}
	matched, err := Evaluate(f, trigger, hist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matched {
		t.Error("expected volume delta filter to match 500 vs mean 100 within [3,10]")
	}
}

func TestEvaluateVolumeDelta_OutOfRangeDoesNotMatch(t *testing.T) {
	hist := history.New()
	base := int64(60000)
	for i, qv := range []float64{100, 100, 100} {
		_ = hist.Append(kline.KLine{
			Venue: "X", Symbol: "Y", Interval: kline.Interval1m,
			OpenTime: base * int64(i), CloseTime: base * int64(i+1),
			Open: d(1), High: d(1), Low: d(1), Close: d(1),
			Volume: d(1), QuoteVolume: d(qv),
		})
	}
	trigger := kline.KLine{
		Venue: "X", Symbol: "Y", Interval: kline.Interval1m,
		OpenTime: base * 3, CloseTime: base * 4,
		Open: d(1), High: d(1), Low: d(1), Close: d(1),
		Volume: d(1), QuoteVolume: d(110),
	}
	_ = hist.Append(trigger)

	// 110/100 = 1.1, below a [3,10] range
	f := kline.Filter{Kind: kline.FilterVolumeDelta, Min: d(3), Max: d(10)}
	matched, err := Evaluate(f, trigger, hist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched {
		t.Error("expected 1.1x ratio not to match range [3,10]")
	}
}

func TestEvaluateVolumeDelta_NoBaselineNeverFires(t *testing.T) {
	hist := history.New()
	f := kline.Filter{Kind: kline.FilterVolumeDelta, Min: d(1), Max: d(10)}
	matched, err := Evaluate(f, kline.KLine{QuoteVolume: d(1000)}, hist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched {
		t.Error("expected no match with empty baseline history")
	}
}

func TestEvaluate_ReservedOrderBookDepthNeverFires(t *testing.T) {
	f := kline.Filter{Kind: kline.FilterOrderBookDepth}
	matched, err := Evaluate(f, kline.KLine{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched {
		t.Error("reserved filter kind must never match")
	}
}
