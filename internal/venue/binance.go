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
	binanceBaseURL   = "https://api.binance.com"
	binancePageLimit = 1000
)

// Binance has no native 10-minute bucket, so Interval10m is absent here and
// FetchKLines rejects it with an unsupported-interval error.
var binanceIntervalCodes = map[kline.Interval]string{
	kline.Interval1m:  "1m",
	kline.Interval5m:  "5m",
	kline.Interval15m: "15m",
	kline.Interval30m: "30m",
	kline.Interval1h:  "1h",
	kline.Interval4h:  "4h",
	kline.Interval8h:  "8h",
	kline.Interval1d:  "1d",
	kline.Interval1w:  "1w",
}

// Binance adapts Binance's spot kline REST API, the chronological
// array-of-arrays format most other crypto venues in this service imitate.
type Binance struct {
	http   *httpclient.Client
	symbols []string
}

// NewBinance returns a Binance adapter restricted to the given symbols, or
// to every symbol the exchangeInfo endpoint lists when symbols is empty.
func NewBinance(http *httpclient.Client, symbols []string) *Binance {
	return &Binance{http: http, symbols: symbols}
}

func (b *Binance) Name() string    { return "BINANCE" }
func (b *Binance) PageLimit() int  { return binancePageLimit }

func (b *Binance) DiscoverInstruments(ctx context.Context) ([]Instrument, error) {
	if len(b.symbols) > 0 {
		out := make([]Instrument, len(b.symbols))
		for i, s := range b.symbols {
			out[i] = Instrument{Symbol: strings.ToUpper(s)}
		}
		return out, nil
	}

	body, status, err := b.http.Get(ctx, binanceBaseURL+"/api/v3/exchangeInfo")
	if err != nil {
		return nil, fmt.Errorf("binance: discover instruments: %w", err)
	}
	if status >= 400 {
		return nil, &HTTPStatusError{Venue: b.Name(), Status: status, Body: string(body)}
	}

	var resp struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
			Status string `json:"status"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("binance: decode exchangeInfo: %w", err)
	}

	out := make([]Instrument, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		out = append(out, Instrument{Symbol: s.Symbol})
	}
	return out, nil
}

func (b *Binance) FetchKLines(ctx context.Context, req FetchRequest) ([]kline.KLine, error) {
	code, ok := binanceIntervalCodes[req.Interval]
	if !ok {
		return nil, fmt.Errorf("binance: unsupported interval %q", req.Interval)
	}

	limit := req.Limit
	if limit <= 0 || limit > binancePageLimit {
		limit = binancePageLimit
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(req.Symbol))
	params.Set("interval", code)
	params.Set("limit", strconv.Itoa(limit))
	if req.Since > 0 {
		params.Set("startTime", strconv.FormatInt(req.Since, 10))
	}

	endpoint := binanceBaseURL + "/api/v3/klines?" + params.Encode()

	body, status, err := b.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("binance: fetch klines: %w", err)
	}
	if status >= 400 {
		return nil, &HTTPStatusError{Venue: b.Name(), Status: status, Body: string(body)}
	}

	var rows [][]json.Number
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	// Binance returns rows chronologically; the last row may still be
	// open (its close time has not yet elapsed), so it is dropped.
	if len(rows) > 0 {
		rows = rows[:len(rows)-1]
	}

	out := make([]kline.KLine, 0, len(rows))
	for _, row := range rows {
		k, err := parseBinanceRow(req.Symbol, req.Interval, row)
		if err != nil {
			return nil, fmt.Errorf("binance: %w", err)
		}
		out = append(out, k)
	}
	return out, nil
}

func parseBinanceRow(symbol string, interval kline.Interval, row []json.Number) (kline.KLine, error) {
	if len(row) < 8 {
		return kline.KLine{}, fmt.Errorf("row has %d fields, want >= 8", len(row))
	}
	openTime, err := row[0].Int64()
	if err != nil {
		return kline.KLine{}, fmt.Errorf("open time: %w", err)
	}
	closeTime, err := row[6].Int64()
	if err != nil {
		return kline.KLine{}, fmt.Errorf("close time: %w", err)
	}
	open, err := decimal.NewFromString(row[1].String())
	if err != nil {
		return kline.KLine{}, fmt.Errorf("open price: %w", err)
	}
	high, err := decimal.NewFromString(row[2].String())
	if err != nil {
		return kline.KLine{}, fmt.Errorf("high price: %w", err)
	}
	low, err := decimal.NewFromString(row[3].String())
	if err != nil {
		return kline.KLine{}, fmt.Errorf("low price: %w", err)
	}
	closePrice, err := decimal.NewFromString(row[4].String())
	if err != nil {
		return kline.KLine{}, fmt.Errorf("close price: %w", err)
	}
	volume, err := decimal.NewFromString(row[5].String())
	if err != nil {
		return kline.KLine{}, fmt.Errorf("volume: %w", err)
	}
	quoteVolume := decimal.Zero
	if len(row) > 7 {
		if qv, err := decimal.NewFromString(row[7].String()); err == nil {
			quoteVolume = qv
		}
	}

	return kline.KLine{
		Venue: "BINANCE", Symbol: strings.ToUpper(symbol), Interval: interval,
		OpenTime: openTime, CloseTime: closeTime,
		Open: open, High: high, Low: low, Close: closePrice,
		Volume: volume, QuoteVolume: quoteVolume,
	}, nil
}
