package push

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DailyRunner is the slice of the engine the scheduler drives
type DailyRunner interface {
	RunDaily(ctx context.Context) error
}

// Scheduler fires the yesterday push on a fixed interval. Unlike the sync
// scheduler it does not fire at startup: a restart must not re-push the
// previous day.
type Scheduler struct {
	runner   DailyRunner
	interval time.Duration
}

// NewScheduler creates a scheduler around the engine
func NewScheduler(r DailyRunner, interval time.Duration) *Scheduler {
	return &Scheduler{runner: r, interval: interval}
}

// Run fires on every tick until ctx is cancelled. Blocks; callers run it
// in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("push scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("push scheduler stopped")
			return
		case <-ticker.C:
			if err := s.runner.RunDaily(ctx); err != nil {
				log.Error().Err(err).Msg("daily push failed")
			}
		}
	}
}
