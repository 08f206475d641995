package venue

import (
	"encoding/json"
	"testing"

	"candlecore/internal/kline"
)

func TestParseBinanceRow(t *testing.T) {
	row := []json.Number{"1000", "100.5", "101.0", "99.5", "100.8", "12.5", "1060000", "1300.25"}
	k, err := parseBinanceRow("btcusdt", kline.Interval1m, row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", k.Symbol)
	}
	if k.OpenTime != 1000 || k.CloseTime != 1060000 {
		t.Errorf("times = (%d,%d), want (1000,1060000)", k.OpenTime, k.CloseTime)
	}
	if k.Close.String() != "100.8" {
		t.Errorf("close = %s, want 100.8", k.Close)
	}
}

func TestParseBinanceRow_TooFewFields(t *testing.T) {
	row := []json.Number{"1000", "100"}
	if _, err := parseBinanceRow("btcusdt", kline.Interval1m, row); err == nil {
		t.Error("expected error for short row, got nil")
	}
}

func TestParseBybitRow(t *testing.T) {
	row := []string{"1000", "100.5", "101.0", "99.5", "100.8", "12.5", "1300.25"}
	k, err := parseBybitRow("ethusdt", kline.Interval1m, row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.OpenTime != 1000 {
		t.Errorf("openTime = %d, want 1000", k.OpenTime)
	}
	wantClose := int64(1000 + 60000)
	if k.CloseTime != wantClose {
		t.Errorf("closeTime = %d, want %d", k.CloseTime, wantClose)
	}
}

func TestParseOKXRow(t *testing.T) {
	row := []string{"1000", "100.5", "101.0", "99.5", "100.8", "12.5", "1250", "1300.25", "1"}
	k, err := parseOKXRow("btc-usdt", kline.Interval1m, row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Symbol != "BTC-USDT" {
		t.Errorf("symbol = %q, want BTC-USDT", k.Symbol)
	}
	if !k.QuoteVolume.Equal(k.QuoteVolume) {
		t.Fatal("sanity check failed")
	}
}

func TestRegistry_UnsupportedVenue(t *testing.T) {
	if _, err := New("BOGUS", nil, nil); err == nil {
		t.Error("expected error for unsupported venue type, got nil")
	}
}
