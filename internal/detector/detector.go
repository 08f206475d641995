// Package detector fans a newly closed candle out to every online
// session's matching filters and queues whatever fires to that session's
// mailbox, preserving per-session delivery order while evaluating
// different sessions concurrently.
package detector

import (
	"context"
	"time"

	"candlecore/internal/history"
	"candlecore/internal/kline"
	"candlecore/internal/logger"
)

// SessionSource is the session registry's half of this contract: which
// sessions are watching an instrument, and where to deliver a match.
type SessionSource interface {
	// FiltersFor returns, for every online session with at least one
	// filter on instrument, that session's id and its matching filters.
	FiltersFor(instrument kline.InstrumentId) map[int32][]kline.Filter

	// Deliver enqueues event to sessionId's mailbox. Implementations
	// never block the caller — a full mailbox sets an overflow flag and
	// drops the event instead.
	Deliver(sessionId int32, event kline.DetectEvent)
}

type job struct {
	sessionId int32
	instr     kline.InstrumentId
	candle    kline.KLine
	filters   []kline.Filter
}

// Engine is the fan-out/evaluate engine. Construct one per process and
// register its OnCandle method as every poller's NewCandleFunc.
type Engine struct {
	log      logger.Logger
	history  *history.Index
	sessions SessionSource

	shards []chan job
}

// New builds an Engine with shardCount worker goroutines, each serializing
// the sessions hashed to it so one session never sees out-of-order
// delivery, while unrelated sessions evaluate in parallel. Call Run to
// start the workers; cancelling Run's context stops them.
func New(log logger.Logger, idx *history.Index, sessions SessionSource, shardCount int) *Engine {
	if shardCount < 1 {
		shardCount = 1
	}
	e := &Engine{
		log:      log,
		history:  idx,
		sessions: sessions,
		shards:   make([]chan job, shardCount),
	}
	for i := range e.shards {
		e.shards[i] = make(chan job, 256)
	}
	return e
}

// Run starts the shard workers and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	done := make(chan struct{})
	for i, ch := range e.shards {
		go e.worker(ctx, i, ch, done)
	}
	<-ctx.Done()
	for range e.shards {
		<-done
	}
}

func (e *Engine) worker(ctx context.Context, idx int, ch chan job, done chan struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-ch:
			e.evaluate(j)
		}
	}
}

// OnCandle is the NewCandleFunc every poller calls once per newly closed
// candle. It looks up every session watching this instrument and
// schedules each session's evaluation onto its shard.
func (e *Engine) OnCandle(k kline.KLine) {
	instr := k.Instrument()
	bySession := e.sessions.FiltersFor(instr)
	for sessionId, filters := range bySession {
		shard := e.shards[shardFor(sessionId, len(e.shards))]
		j := job{sessionId: sessionId, instr: instr, candle: k, filters: filters}
		select {
		case shard <- j:
		default:
			e.log.Warn("detector shard saturated, dropping evaluation", "session", sessionId, "instrument", instr.String())
		}
	}
}

// historyTailSize bounds the DetectEvent.HistoryTail snapshot, the
// "last ~20 candles" window documented on kline.DetectEvent.
const historyTailSize = 20

func (e *Engine) evaluate(j job) {
	hist := e.history.Get(j.instr)
	if hist == nil {
		return
	}
	for _, f := range j.filters {
		matched, err := Evaluate(f, j.candle, hist)
		if err != nil {
			e.log.Debug("filter evaluation skipped", "session", j.sessionId, "error", err)
			continue
		}
		if !matched {
			continue
		}
		e.sessions.Deliver(j.sessionId, kline.DetectEvent{
			Instrument:  j.instr,
			Filter:      f,
			Triggering:  j.candle,
			HistoryTail: trimTrigger(hist.Tail(historyTailSize + 1)),
			ReviewTail:  e.reviewTail(j.instr),
			DetectedAt:  time.UnixMilli(j.candle.CloseTime),
		})
	}
}

// reviewTail returns the tail of the MIN5 history for the same venue and
// symbol as instr — the "coarser interval" review snapshot every
// DetectEvent carries regardless of which interval triggered it. When instr
// itself is the MIN5 instrument, the trigger candle (already carried
// separately on DetectEvent) is trimmed from the tail just like HistoryTail.
func (e *Engine) reviewTail(instr kline.InstrumentId) []kline.KLine {
	reviewID := kline.InstrumentId{Venue: instr.Venue, Symbol: instr.Symbol, Interval: kline.Interval5m}
	reviewHist := e.history.Get(reviewID)
	if reviewHist == nil {
		return nil
	}
	tail := reviewHist.Tail(historyTailSize + 1)
	if instr.Interval == kline.Interval5m {
		return trimTrigger(tail)
	}
	if len(tail) > historyTailSize {
		tail = tail[len(tail)-historyTailSize:]
	}
	return tail
}

// trimTrigger drops the newest candle from a tail snapshot when it is the
// triggering candle itself, already carried separately on DetectEvent.
func trimTrigger(tail []kline.KLine) []kline.KLine {
	if len(tail) == 0 {
		return tail
	}
	return tail[:len(tail)-1]
}

func shardFor(sessionId int32, n int) int {
	v := int(sessionId) % n
	if v < 0 {
		v += n
	}
	return v
}
