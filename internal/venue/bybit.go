package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"candlecore/internal/httpclient"
	"candlecore/internal/kline"

	"github.com/shopspring/decimal"
)

const (
	bybitBaseURL   = "https://api.bybit.com"
	bybitPageLimit = 1000
)

// Bybit has no native 10-minute bucket, so Interval10m is absent here and
// FetchKLines rejects it with an unsupported-interval error.
var bybitIntervalCodes = map[kline.Interval]string{
	kline.Interval1m:  "1",
	kline.Interval5m:  "5",
	kline.Interval15m: "15",
	kline.Interval30m: "30",
	kline.Interval1h:  "60",
	kline.Interval4h:  "240",
	kline.Interval8h:  "480",
	kline.Interval1d:  "D",
	kline.Interval1w:  "W",
}

// Bybit adapts Bybit's v5 market/kline REST API: object-wrapped,
// string-encoded numeric fields, rows in reverse-chronological order.
type Bybit struct {
	http    *httpclient.Client
	symbols []string
}

func NewBybit(http *httpclient.Client, symbols []string) *Bybit {
	return &Bybit{http: http, symbols: symbols}
}

func (b *Bybit) Name() string   { return "BYBIT" }
func (b *Bybit) PageLimit() int { return bybitPageLimit }

func (b *Bybit) DiscoverInstruments(ctx context.Context) ([]Instrument, error) {
	if len(b.symbols) > 0 {
		out := make([]Instrument, len(b.symbols))
		for i, s := range b.symbols {
			out[i] = Instrument{Symbol: strings.ToUpper(s)}
		}
		return out, nil
	}

	body, status, err := b.http.Get(ctx, bybitBaseURL+"/v5/market/instruments-info?category=spot")
	if err != nil {
		return nil, fmt.Errorf("bybit: discover instruments: %w", err)
	}
	if status >= 400 {
		return nil, &HTTPStatusError{Venue: b.Name(), Status: status, Body: string(body)}
	}

	var resp struct {
		Result struct {
			List []struct {
				Symbol string `json:"symbol"`
				Status string `json:"status"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bybit: decode instruments-info: %w", err)
	}

	out := make([]Instrument, 0, len(resp.Result.List))
	for _, s := range resp.Result.List {
		if s.Status != "Trading" {
			continue
		}
		out = append(out, Instrument{Symbol: s.Symbol})
	}
	return out, nil
}

func (b *Bybit) FetchKLines(ctx context.Context, req FetchRequest) ([]kline.KLine, error) {
	code, ok := bybitIntervalCodes[req.Interval]
	if !ok {
		return nil, fmt.Errorf("bybit: unsupported interval %q", req.Interval)
	}

	limit := req.Limit
	if limit <= 0 || limit > bybitPageLimit {
		limit = bybitPageLimit
	}

	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", strings.ToUpper(req.Symbol))
	params.Set("interval", code)
	params.Set("limit", strconv.Itoa(limit))
	if req.Since > 0 {
		params.Set("start", strconv.FormatInt(req.Since, 10))
	}

	endpoint := bybitBaseURL + "/v5/market/kline?" + params.Encode()

	body, status, err := b.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("bybit: fetch klines: %w", err)
	}
	if status >= 400 {
		return nil, &HTTPStatusError{Venue: b.Name(), Status: status, Body: string(body)}
	}

	var resp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("bybit: decode klines: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, &HTTPStatusError{Venue: b.Name(), Status: 400, Body: resp.RetMsg}
	}

	rows := resp.Result.List
	// Bybit returns rows newest-first; the head row is still open and is
	// dropped. The remaining rows are closed candles in reverse order.
	if len(rows) > 0 {
		rows = rows[1:]
	}

	out := make([]kline.KLine, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		k, err := parseBybitRow(req.Symbol, req.Interval, rows[i])
		if err != nil {
			return nil, fmt.Errorf("bybit: %w", err)
		}
		out = append(out, k)
	}
	return out, nil
}

func parseBybitRow(symbol string, interval kline.Interval, row []string) (kline.KLine, error) {
	if len(row) < 7 {
		return kline.KLine{}, fmt.Errorf("row has %d fields, want >= 7", len(row))
	}
	openTime, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return kline.KLine{}, fmt.Errorf("start time: %w", err)
	}
	open, err := decimal.NewFromString(row[1])
	if err != nil {
		return kline.KLine{}, fmt.Errorf("open: %w", err)
	}
	high, err := decimal.NewFromString(row[2])
	if err != nil {
		return kline.KLine{}, fmt.Errorf("high: %w", err)
	}
	low, err := decimal.NewFromString(row[3])
	if err != nil {
		return kline.KLine{}, fmt.Errorf("low: %w", err)
	}
	closePrice, err := decimal.NewFromString(row[4])
	if err != nil {
		return kline.KLine{}, fmt.Errorf("close: %w", err)
	}
	volume, err := decimal.NewFromString(row[5])
	if err != nil {
		return kline.KLine{}, fmt.Errorf("volume: %w", err)
	}
	quoteVolume := decimal.Zero
	if qv, err := decimal.NewFromString(row[6]); err == nil {
		quoteVolume = qv
	}

	return kline.KLine{
		Venue: "BYBIT", Symbol: strings.ToUpper(symbol), Interval: interval,
		OpenTime: openTime, CloseTime: openTime + interval.Milliseconds(),
		Open: open, High: high, Low: low, Close: closePrice,
		Volume: volume, QuoteVolume: quoteVolume,
	}, nil
}
