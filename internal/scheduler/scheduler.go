// Package scheduler runs this service's periodic background tasks: idle
// session eviction, user-data persistence, and venue instrument
// rediscovery, each on its own cron cadence.
package scheduler

import (
	"context"
	"time"

	"candlecore/internal/logger"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron.Cron with the task set this service needs.
type Scheduler struct {
	cron *cron.Cron
	log  logger.Logger
}

// New builds a Scheduler with second-less (minute-resolution) cron parsing,
// matching the "@every" style entries registered below.
func New(log logger.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log,
	}
}

// IdleSweep registers fn to run on a 1-minute cadence, evicting sessions
// that have gone quiet past their idle timeout.
func (s *Scheduler) IdleSweep(fn func(now time.Time)) error {
	_, err := s.cron.AddFunc("@every 1m", func() { fn(time.Now()) })
	return err
}

// UserFlush registers fn to run on a 1-minute cadence, persisting any
// in-memory user state a session mutated since the last flush.
func (s *Scheduler) UserFlush(fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc("@every 1m", func() {
		if err := fn(context.Background()); err != nil {
			s.log.Warn("scheduler: user flush failed", "error", err)
		}
	})
	return err
}

// Rediscover registers fn to run on a 10-minute cadence, refreshing each
// venue's instrument list and starting pollers for anything new.
func (s *Scheduler) Rediscover(fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc("@every 10m", func() {
		if err := fn(context.Background()); err != nil {
			s.log.Warn("scheduler: rediscovery failed", "error", err)
		}
	})
	return err
}

// Start begins running registered jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop blocks until any in-flight job completes, then stops the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
