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
	okxBaseURL   = "https://www.okx.com"
	okxPageLimit = 300
)

// OKX buckets 6H/12H where other venues bucket 8H, so Interval8h and
// Interval10m are absent here and FetchKLines rejects them with an
// unsupported-interval error.
var okxIntervalCodes = map[kline.Interval]string{
	kline.Interval1m:  "1m",
	kline.Interval5m:  "5m",
	kline.Interval15m: "15m",
	kline.Interval30m: "30m",
	kline.Interval1h:  "1H",
	kline.Interval4h:  "4H",
	kline.Interval1d:  "1D",
	kline.Interval1w:  "1W",
}

// OKX adapts OKX's market/candles REST API: object-wrapped rows, reverse
// chronological, with an explicit "confirm" flag marking a row closed —
// OKX is the one venue here that does not require a positional guess for
// which trailing row is still open.
type OKX struct {
	http    *httpclient.Client
	symbols []string
}

func NewOKX(http *httpclient.Client, symbols []string) *OKX {
	return &OKX{http: http, symbols: symbols}
}

func (o *OKX) Name() string   { return "OKX" }
func (o *OKX) PageLimit() int { return okxPageLimit }

func (o *OKX) DiscoverInstruments(ctx context.Context) ([]Instrument, error) {
	if len(o.symbols) > 0 {
		out := make([]Instrument, len(o.symbols))
		for i, s := range o.symbols {
			out[i] = Instrument{Symbol: strings.ToUpper(s)}
		}
		return out, nil
	}

	body, status, err := o.http.Get(ctx, okxBaseURL+"/api/v5/public/instruments?instType=SPOT")
	if err != nil {
		return nil, fmt.Errorf("okx: discover instruments: %w", err)
	}
	if status >= 400 {
		return nil, &HTTPStatusError{Venue: o.Name(), Status: status, Body: string(body)}
	}

	var resp struct {
		Data []struct {
			InstId string `json:"instId"`
			State  string `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("okx: decode instruments: %w", err)
	}

	out := make([]Instrument, 0, len(resp.Data))
	for _, s := range resp.Data {
		if s.State != "live" {
			continue
		}
		out = append(out, Instrument{Symbol: s.InstId})
	}
	return out, nil
}

func (o *OKX) FetchKLines(ctx context.Context, req FetchRequest) ([]kline.KLine, error) {
	code, ok := okxIntervalCodes[req.Interval]
	if !ok {
		return nil, fmt.Errorf("okx: unsupported interval %q", req.Interval)
	}

	limit := req.Limit
	if limit <= 0 || limit > okxPageLimit {
		limit = okxPageLimit
	}

	params := url.Values{}
	params.Set("instId", strings.ToUpper(req.Symbol))
	params.Set("bar", code)
	params.Set("limit", strconv.Itoa(limit))
	if req.Since > 0 {
		params.Set("after", strconv.FormatInt(req.Since, 10))
	}

	endpoint := okxBaseURL + "/api/v5/market/candles?" + params.Encode()

	body, status, err := o.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("okx: fetch klines: %w", err)
	}
	if status >= 400 {
		return nil, &HTTPStatusError{Venue: o.Name(), Status: status, Body: string(body)}
	}

	var resp struct {
		Code string     `json:"code"`
		Msg  string     `json:"msg"`
		Data [][]string `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("okx: decode klines: %w", err)
	}
	if resp.Code != "0" {
		return nil, &HTTPStatusError{Venue: o.Name(), Status: 400, Body: resp.Msg}
	}

	out := make([]kline.KLine, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- {
		row := resp.Data[i]
		if len(row) < 9 || row[8] != "1" {
			continue // not yet confirmed closed
		}
		k, err := parseOKXRow(req.Symbol, req.Interval, row)
		if err != nil {
			return nil, fmt.Errorf("okx: %w", err)
		}
		out = append(out, k)
	}
	return out, nil
}

func parseOKXRow(symbol string, interval kline.Interval, row []string) (kline.KLine, error) {
	openTime, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return kline.KLine{}, fmt.Errorf("timestamp: %w", err)
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
	if len(row) > 7 {
		if qv, err := decimal.NewFromString(row[7]); err == nil {
			quoteVolume = qv
		}
	}

	return kline.KLine{
		Venue: "OKX", Symbol: strings.ToUpper(symbol), Interval: interval,
		OpenTime: openTime, CloseTime: openTime + interval.Milliseconds(),
		Open: open, High: high, Low: low, Close: closePrice,
		Volume: volume, QuoteVolume: quoteVolume,
	}, nil
}
