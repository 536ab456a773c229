package runner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler fires sync runs on a fixed interval. Runs never overlap within
// one process because the loop is serial; across processes the Redis lock
// arbitrates.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
}

// NewScheduler creates a scheduler around the runner
func NewScheduler(r *Runner, interval time.Duration) *Scheduler {
	return &Scheduler{runner: r, interval: interval}
}

// Run fires one run immediately, then on every tick until ctx is
// cancelled. Blocks; callers run it in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("sync scheduler started")

	s.fire(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sync scheduler stopped")
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.runner.RunOnce(ctx); err != nil {
		log.Error().Err(err).Msg("sync run failed")
	}
}
