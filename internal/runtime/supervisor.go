// Package runtime owns the set of running Pollers for every configured
// venue and keeps it in sync with each venue's advertised instrument list.
package runtime

import (
	"context"
	"strings"
	"sync"

	"candlecore/internal/config"
	"candlecore/internal/history"
	"candlecore/internal/kline"
	"candlecore/internal/logger"
	"candlecore/internal/poller"
	"candlecore/internal/venue"
)

// pollerKey identifies one running Poller.
type pollerKey = kline.InstrumentId

// Supervisor starts and stops Pollers as venues' instrument lists change.
// One Supervisor per venue configuration entry.
type Supervisor struct {
	venueName string
	adapter   venue.Adapter
	intervals []kline.Interval
	symbolTag string // KLineNames prefix filter, empty means no filtering
	history   *history.Index
	onCandle  poller.NewCandleFunc
	log       logger.Logger

	mu      sync.Mutex
	running map[pollerKey]*poller.Poller
}

// New builds a Supervisor for one [STOCK_EXCHANGE_N] entry.
func New(sc config.StockExchangeConfig, adapter venue.Adapter, idx *history.Index, onCandle poller.NewCandleFunc, log logger.Logger) *Supervisor {
	return &Supervisor{
		venueName: adapter.Name(),
		adapter:   adapter,
		intervals: sc.KLineTypes,
		symbolTag: sc.KLineNames,
		history:   idx,
		onCandle:  onCandle,
		log:       log,
		running:   make(map[pollerKey]*poller.Poller),
	}
}

// Rediscover asks the adapter for its current instrument list and starts a
// Poller for every (symbol, interval) pair not already running. A running
// Poller whose pair is no longer in the list is stopped, and its history is
// removed from the index. A failed discovery call changes nothing.
func (s *Supervisor) Rediscover(ctx context.Context) error {
	instruments, err := s.adapter.DiscoverInstruments(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[pollerKey]struct{})
	for _, inst := range instruments {
		if s.symbolTag != "" && !strings.HasPrefix(inst.Symbol, s.symbolTag) {
			continue
		}
		for _, interval := range s.intervals {
			id := kline.InstrumentId{Venue: s.venueName, Symbol: inst.Symbol, Interval: interval}
			wanted[id] = struct{}{}
			if _, ok := s.running[id]; ok {
				continue
			}
			s.start(ctx, id)
		}
	}

	for id, p := range s.running {
		if _, ok := wanted[id]; ok {
			continue
		}
		p.Stop()
		delete(s.running, id)
		s.history.Remove(id)
		s.log.Info("runtime: stopped poller", "instrument", id.String())
	}
	return nil
}

// start launches a Poller for id. Caller must hold s.mu.
func (s *Supervisor) start(ctx context.Context, id kline.InstrumentId) {
	hist := s.history.Ensure(id)
	lastClose, _ := hist.LastClose()
	p := poller.New(id, s.adapter, hist, s.log, s.onCandle, lastClose)
	s.running[id] = p
	go p.Run(ctx)
	s.log.Info("runtime: started poller", "instrument", id.String())
}

// Stop halts every Poller this Supervisor started and waits for them to
// return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wg sync.WaitGroup
	for id, p := range s.running {
		wg.Add(1)
		go func(id pollerKey, p *poller.Poller) {
			defer wg.Done()
			p.Stop()
		}(id, p)
	}
	wg.Wait()
	s.running = make(map[pollerKey]*poller.Poller)
}

// Count reports how many Pollers are currently running.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
