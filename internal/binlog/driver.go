package binlog

import (
	"context"

	"github.com/dxxy/mss-sync/internal/errclass"
	"github.com/dxxy/mss-sync/internal/gateway"
	"github.com/dxxy/mss-sync/internal/timex"
	"github.com/rs/zerolog/log"
)

// MaxRetries is the per-run retry budget for transient failures
const MaxRetries = 3

// PermanentFailure records a log the run gave up on
type PermanentFailure struct {
	Log    gateway.ChangeLog
	Reason string
}

// Report summarizes one driver pass over a window's logs
type Report struct {
	Completed   int
	Permanent   []PermanentFailure
	Unrecovered []*State
}

// Driver advances seeded states through the processor's chain, retrying
// transient failures up to MaxRetries rounds. The retry queue holds the
// state value, not the log, so resolved payloads survive across rounds and
// only the failing step reruns.
type Driver struct {
	proc  Processor
	nowMs func() int64
}

// NewDriver creates a driver for one entity kind
func NewDriver(proc Processor) *Driver {
	return &Driver{proc: proc, nowMs: timex.NowMs}
}

// Run processes logs in feed order and returns the aggregated batch plus
// the report. The batch is always usable: cancellation or exhausted retries
// still leave the contributions of completed steps in place.
func (d *Driver) Run(ctx context.Context, logs []gateway.ChangeLog) (*ProcessedSet, *Report) {
	batch := NewProcessedSet()
	report := &Report{}

	states := make([]*State, 0, len(logs))
	for _, l := range logs {
		states = append(states, &State{Stage: StageInitial, Log: l})
	}

	for round := 1; round <= MaxRetries && len(states) > 0; round++ {
		var retries []*State

		for i, st := range states {
			// Cancellation between logs: the aggregate so far still commits.
			if ctx.Err() != nil {
				report.Unrecovered = append(report.Unrecovered, states[i:]...)
				log.Warn().
					Str("kind", string(d.proc.Kind())).
					Int("remaining", len(states)-i).
					Msg("run cancelled, remaining logs left unprocessed")
				states = nil
				break
			}

			d.drive(ctx, st, batch, &retries, report)
		}

		states = retries
		if len(states) > 0 && round < MaxRetries {
			log.Info().
				Str("kind", string(d.proc.Kind())).
				Int("round", round).
				Int("retrying", len(states)).
				Msg("retrying transient failures")
		}
	}

	for _, st := range states {
		log.Error().
			Str("kind", string(d.proc.Kind())).
			Str("log_id", st.Log.ID).
			Str("stage", st.Stage.String()).
			Msg("log unrecovered after retry budget")
	}
	report.Unrecovered = append(report.Unrecovered, states...)

	return batch, report
}

// drive advances one state until it completes or errors out
func (d *Driver) drive(ctx context.Context, st *State, batch *ProcessedSet, retries *[]*State, report *Report) {
	for {
		outcome, err := d.proc.Advance(ctx, st)
		if err != nil {
			if errclass.IsTransient(err) {
				log.Warn().
					Err(err).
					Str("log_id", st.Log.ID).
					Str("stage", st.Stage.String()).
					Msg("transient failure, queued for retry")
				*retries = append(*retries, st)
			} else {
				log.Warn().
					Err(err).
					Str("log_id", st.Log.ID).
					Str("stage", st.Stage.String()).
					Msg("permanent failure, log dropped")
				report.Permanent = append(report.Permanent, PermanentFailure{Log: st.Log, Reason: err.Error()})
			}
			return
		}

		switch outcome {
		case OutcomeAdvanced:
			d.proc.PostAdvance(st, batch, d.nowMs())
		case OutcomeCompleted:
			d.proc.PostComplete(st, batch, d.nowMs())
			report.Completed++
			return
		}
	}
}
