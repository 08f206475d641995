package history

import (
	"testing"

	"candlecore/internal/kline"

	"github.com/shopspring/decimal"
)

func mustCandle(closeTime int64, qv float64) kline.KLine {
	d := decimal.NewFromFloat
	return kline.KLine{
		Venue: "BINANCE", Symbol: "BTCUSDT", Interval: kline.Interval1m,
		OpenTime: closeTime - 60000, CloseTime: closeTime,
		Open: d(100), High: d(101), Low: d(99), Close: d(100.5),
		Volume: d(10), QuoteVolume: d(qv),
	}
}

func TestRollingHistory_AppendAndTail(t *testing.T) {
	h := New()
	for i := int64(1); i <= 5; i++ {
		if err := h.Append(mustCandle(i*60000, float64(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if got := h.Len(); got != 5 {
		t.Fatalf("len = %d, want 5", got)
	}
	tail := h.Tail(3)
	if len(tail) != 3 {
		t.Fatalf("tail len = %d, want 3", len(tail))
	}
	if tail[2].CloseTime != 5*60000 {
		t.Errorf("tail[2].CloseTime = %d, want %d", tail[2].CloseTime, 5*60000)
	}
}

func TestRollingHistory_RejectsOutOfOrder(t *testing.T) {
	h := New()
	if err := h.Append(mustCandle(2000, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Append(mustCandle(2000, 1)); err == nil {
		t.Error("expected error appending duplicate closeTime, got nil")
	}
	if err := h.Append(mustCandle(1000, 1)); err == nil {
		t.Error("expected error appending earlier closeTime, got nil")
	}
}

func TestRollingHistory_EvictsOldestAtCapacity(t *testing.T) {
	h := New()
	for i := int64(1); i <= Capacity+10; i++ {
		if err := h.Append(mustCandle(i*60000, 1)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if got := h.Len(); got != Capacity {
		t.Fatalf("len = %d, want %d", got, Capacity)
	}
	tail := h.Tail(1)
	wantClose := int64(Capacity+10) * 60000
	if tail[0].CloseTime != wantClose {
		t.Errorf("newest closeTime = %d, want %d", tail[0].CloseTime, wantClose)
	}
	oldest := h.Tail(Capacity)[0]
	wantOldest := int64(11) * 60000
	if oldest.CloseTime != wantOldest {
		t.Errorf("oldest retained closeTime = %d, want %d", oldest.CloseTime, wantOldest)
	}
}

func TestRollingHistory_MeanQuoteVolumeExcludesTrigger(t *testing.T) {
	h := New()
	vols := []float64{10, 20, 30, 1000} // last one is the "trigger"
	for i, v := range vols {
		if err := h.Append(mustCandle(int64(i+1)*60000, v)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	mean := h.MeanQuoteVolume(3)
	want := decimal.NewFromFloat(20) // (10+20+30)/3
	if !mean.Equal(want) {
		t.Errorf("mean = %s, want %s", mean, want)
	}
}

func TestRollingHistory_MeanQuoteVolumeInsufficientHistory(t *testing.T) {
	h := New()
	if got := h.MeanQuoteVolume(5); !got.IsZero() {
		t.Errorf("mean on empty history = %s, want 0", got)
	}
	_ = h.Append(mustCandle(60000, 5))
	if got := h.MeanQuoteVolume(5); !got.IsZero() {
		t.Errorf("mean with only the trigger candle = %s, want 0", got)
	}
}

func TestIndex_EnsureIsIdempotent(t *testing.T) {
	idx := NewIndex()
	id := kline.InstrumentId{Venue: "BINANCE", Symbol: "BTCUSDT", Interval: kline.Interval1m}

	h1 := idx.Ensure(id)
	h2 := idx.Ensure(id)
	if h1 != h2 {
		t.Error("Ensure returned different histories for the same instrument")
	}
	if len(idx.Instruments()) != 1 {
		t.Errorf("instruments = %d, want 1", len(idx.Instruments()))
	}
}

func TestIndex_Remove(t *testing.T) {
	idx := NewIndex()
	id := kline.InstrumentId{Venue: "OKX", Symbol: "ETH-USDT", Interval: kline.Interval5m}
	idx.Ensure(id)
	idx.Remove(id)
	if idx.Get(id) != nil {
		t.Error("history still present after Remove")
	}
	if len(idx.Instruments()) != 0 {
		t.Errorf("instruments = %d, want 0", len(idx.Instruments()))
	}
}
