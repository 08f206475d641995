package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"candlecore/internal/httpclient"
	"candlecore/internal/kline"

	"github.com/shopspring/decimal"
)

const (
	moexBaseURL   = "https://iss.moex.com"
	moexBoard     = "TQBR"
	moexPageLimit = 500
)

// moexLocation is Moscow time (UTC+3, no DST since 2014), the timezone
// MOEX ISS candle "begin"/"end" timestamps are expressed in without an
// explicit offset.
var moexLocation = time.FixedZone("MSK", 3*60*60)

// MOEX ISS only exposes candle.interval values 1, 10, 60, 24 (daily), and 7
// (weekly) — finer crypto-style buckets (5m, 15m, 30m, 4h, 8h) have no MOEX
// equivalent and are intentionally absent here.
var moexIntervalCodes = map[kline.Interval]string{
	kline.Interval1m:  "1",
	kline.Interval10m: "10",
	kline.Interval1h:  "60",
	kline.Interval1d:  "24",
	kline.Interval1w:  "7",
}

// Moex adapts the Moscow Exchange ISS engine/market/board REST surface —
// the one equity venue this service polls. Rows are named-column objects
// at second granularity rather than the millisecond arrays the crypto
// venues return.
type Moex struct {
	http    *httpclient.Client
	symbols []string
}

func NewMoex(http *httpclient.Client, symbols []string) *Moex {
	return &Moex{http: http, symbols: symbols}
}

func (m *Moex) Name() string   { return "MOEX" }
func (m *Moex) PageLimit() int { return moexPageLimit }

func (m *Moex) DiscoverInstruments(ctx context.Context) ([]Instrument, error) {
	if len(m.symbols) > 0 {
		out := make([]Instrument, len(m.symbols))
		for i, s := range m.symbols {
			out[i] = Instrument{Symbol: strings.ToUpper(s)}
		}
		return out, nil
	}

	endpoint := fmt.Sprintf("%s/iss/engines/stock/markets/shares/boards/%s/securities.json?iss.only=securities&securities.columns=SECID", moexBaseURL, moexBoard)
	body, status, err := m.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("moex: discover instruments: %w", err)
	}
	if status >= 400 {
		return nil, &HTTPStatusError{Venue: m.Name(), Status: status, Body: string(body)}
	}

	var resp struct {
		Securities struct {
			Columns []string        `json:"columns"`
			Data    [][]interface{} `json:"data"`
		} `json:"securities"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("moex: decode securities: %w", err)
	}

	out := make([]Instrument, 0, len(resp.Securities.Data))
	for _, row := range resp.Securities.Data {
		if len(row) == 0 {
			continue
		}
		if secID, ok := row[0].(string); ok {
			out = append(out, Instrument{Symbol: secID})
		}
	}
	return out, nil
}

func (m *Moex) FetchKLines(ctx context.Context, req FetchRequest) ([]kline.KLine, error) {
	code, ok := moexIntervalCodes[req.Interval]
	if !ok {
		return nil, fmt.Errorf("moex: unsupported interval %q", req.Interval)
	}

	limit := req.Limit
	if limit <= 0 || limit > moexPageLimit {
		limit = moexPageLimit
	}

	params := url.Values{}
	params.Set("interval", code)
	params.Set("iss.meta", "off")
	if req.Since > 0 {
		from := time.UnixMilli(req.Since).In(moexLocation).Format("2006-01-02")
		params.Set("from", from)
	}

	endpoint := fmt.Sprintf("%s/iss/engines/stock/markets/shares/boards/%s/securities/%s/candles.json?%s",
		moexBaseURL, moexBoard, strings.ToUpper(req.Symbol), params.Encode())

	body, status, err := m.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("moex: fetch klines: %w", err)
	}
	if status >= 400 {
		return nil, &HTTPStatusError{Venue: m.Name(), Status: status, Body: string(body)}
	}

	var resp struct {
		Candles struct {
			Columns []string        `json:"columns"`
			Data    [][]interface{} `json:"data"`
		} `json:"candles"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("moex: decode candles: %w", err)
	}

	idx := columnIndex(resp.Candles.Columns)

	rows := resp.Candles.Data
	// MOEX never includes the still-forming candle for a completed
	// trading session's interval, but for the intraday and weekly
	// intervals the final row can be in-progress; dropping it for every
	// interval except 1d mirrors the crypto adapters' tail-discard rule.
	if req.Interval != kline.Interval1d && len(rows) > 0 {
		rows = rows[:len(rows)-1]
	}

	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	out := make([]kline.KLine, 0, len(rows))
	for _, row := range rows {
		k, err := parseMoexRow(req.Symbol, req.Interval, idx, row)
		if err != nil {
			return nil, fmt.Errorf("moex: %w", err)
		}
		out = append(out, k)
	}
	return out, nil
}

type moexColumnIndex struct {
	open, high, low, close, volume, value, begin, end int
}

func columnIndex(columns []string) moexColumnIndex {
	idx := moexColumnIndex{-1, -1, -1, -1, -1, -1, -1, -1}
	for i, c := range columns {
		switch c {
		case "open":
			idx.open = i
		case "high":
			idx.high = i
		case "low":
			idx.low = i
		case "close":
			idx.close = i
		case "volume":
			idx.volume = i
		case "value":
			idx.value = i
		case "begin":
			idx.begin = i
		case "end":
			idx.end = i
		}
	}
	return idx
}

func parseMoexRow(symbol string, interval kline.Interval, idx moexColumnIndex, row []interface{}) (kline.KLine, error) {
	get := func(i int) (interface{}, error) {
		if i < 0 || i >= len(row) {
			return nil, fmt.Errorf("missing column index %d", i)
		}
		return row[i], nil
	}

	beginRaw, err := get(idx.begin)
	if err != nil {
		return kline.KLine{}, err
	}
	beginStr, _ := beginRaw.(string)
	beginTime, err := time.ParseInLocation("2006-01-02 15:04:05", beginStr, moexLocation)
	if err != nil {
		return kline.KLine{}, fmt.Errorf("begin timestamp %q: %w", beginStr, err)
	}

	open, err := moexDecimal(row, idx.open)
	if err != nil {
		return kline.KLine{}, fmt.Errorf("open: %w", err)
	}
	high, err := moexDecimal(row, idx.high)
	if err != nil {
		return kline.KLine{}, fmt.Errorf("high: %w", err)
	}
	low, err := moexDecimal(row, idx.low)
	if err != nil {
		return kline.KLine{}, fmt.Errorf("low: %w", err)
	}
	closePrice, err := moexDecimal(row, idx.close)
	if err != nil {
		return kline.KLine{}, fmt.Errorf("close: %w", err)
	}
	volume, err := moexDecimal(row, idx.volume)
	if err != nil {
		return kline.KLine{}, fmt.Errorf("volume: %w", err)
	}
	quoteVolume := decimal.Zero
	if qv, err := moexDecimal(row, idx.value); err == nil {
		quoteVolume = qv
	}

	openTime := beginTime.UnixMilli()
	closeTime := openTime + interval.Milliseconds()

	return kline.KLine{
		Venue: "MOEX", Symbol: strings.ToUpper(symbol), Interval: interval,
		OpenTime: openTime, CloseTime: closeTime,
		Open: open, High: high, Low: low, Close: closePrice,
		Volume: volume, QuoteVolume: quoteVolume,
	}, nil
}

func moexDecimal(row []interface{}, i int) (decimal.Decimal, error) {
	if i < 0 || i >= len(row) {
		return decimal.Zero, fmt.Errorf("missing column index %d", i)
	}
	switch v := row[i].(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(f), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}
