package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"candlecore/internal/history"
	"candlecore/internal/kline"
	"candlecore/internal/logger"
	"candlecore/internal/venue"

	"github.com/shopspring/decimal"
)

type fakeAdapter struct {
	mu      sync.Mutex
	pages   [][]kline.KLine
	calls   int
	limit   int
	reqSeen []venue.FetchRequest
}

func (f *fakeAdapter) Name() string { return "FAKE" }
func (f *fakeAdapter) PageLimit() int {
	if f.limit == 0 {
		return 1000
	}
	return f.limit
}
func (f *fakeAdapter) DiscoverInstruments(ctx context.Context) ([]venue.Instrument, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchKLines(ctx context.Context, req venue.FetchRequest) ([]kline.KLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqSeen = append(f.reqSeen, req)
	if f.calls >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func candle(closeTime int64) kline.KLine {
	return kline.KLine{
		Venue: "FAKE", Symbol: "XYZ", Interval: kline.Interval1m,
		OpenTime: closeTime - 60000, CloseTime: closeTime,
		Open: decimal.NewFromInt(1), High: decimal.NewFromInt(2),
		Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(1),
		Volume: decimal.NewFromInt(1), QuoteVolume: decimal.NewFromInt(1),
	}
}

func TestPoller_AppendsAndNotifiesNewCandles(t *testing.T) {
	adapter := &fakeAdapter{pages: [][]kline.KLine{
		{candle(60000), candle(120000)},
	}}
	hist := history.New()
	var notified []kline.KLine
	var mu sync.Mutex

	id := kline.InstrumentId{Venue: "FAKE", Symbol: "XYZ", Interval: kline.Interval1m}
	p := New(id, adapter, hist, logger.New("error"), func(k kline.KLine) {
		mu.Lock()
		notified = append(notified, k)
		mu.Unlock()
	}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if hist.Len() != 2 {
		t.Fatalf("history len = %d, want 2", hist.Len())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 2 {
		t.Fatalf("notified = %d, want 2", len(notified))
	}
}

func TestPoller_RequestSizeGrowsWithGap(t *testing.T) {
	id := kline.InstrumentId{Venue: "FAKE", Symbol: "XYZ", Interval: kline.Interval1m}
	p := New(id, &fakeAdapter{}, history.New(), logger.New("error"), nil, time.Now().Add(-10*time.Minute).UnixMilli())
	size := p.requestSize()
	if size < 10+requestPadding {
		t.Errorf("requestSize = %d, want >= %d", size, 10+requestPadding)
	}
}

func TestPoller_StopEndsRun(t *testing.T) {
	adapter := &fakeAdapter{}
	id := kline.InstrumentId{Venue: "FAKE", Symbol: "XYZ", Interval: kline.Interval1m}
	p := New(id, adapter, history.New(), logger.New("error"), nil, 0)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	p.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
