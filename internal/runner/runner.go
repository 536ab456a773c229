// Package runner orchestrates one sync run end to end: take the
// distributed lock, compute the pull window from the watermark, drive both
// entity chains over the feed, commit the aggregate, refresh derived
// tables, advance the watermark and release the lock.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/dxxy/mss-sync/internal/binlog"
	"github.com/dxxy/mss-sync/internal/gateway"
	"github.com/dxxy/mss-sync/internal/redislock"
	"github.com/dxxy/mss-sync/internal/timex"
	"github.com/rs/zerolog/log"
)

// LockKey guards sync runs across all instances
const LockKey = "BINLOG_SYNC_LOCK_KEY"

// lockTTL caps a crashed holder's shadow. A healthy run finishes well
// inside it; an unreleased key expires on its own.
const lockTTL = 4 * time.Hour

// Gateway is the slice of the gateway client a run needs
type Gateway interface {
	binlog.Resolver
	binlog.Finder
}

// Locker grants and releases the run lock
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (*redislock.Handle, error)
	Release(ctx context.Context, h *redislock.Handle) (bool, error)
}

// Watermarks persists the feed position across runs
type Watermarks interface {
	Get(ctx context.Context) (int64, error)
	Save(ctx context.Context, ts int64) error
}

// Sink persists a run's aggregate and refreshes the derived tables
type Sink interface {
	Commit(ctx context.Context, set *binlog.ProcessedSet) error
	RefreshUserDerived(ctx context.Context, ids []string) error
	RefreshOrgDerived(ctx context.Context, ids []string) error
}

type kindDriver struct {
	kind gateway.BinlogKind
	drv  *binlog.Driver
}

// Runner executes sync runs
type Runner struct {
	locker  Locker
	marks   Watermarks
	feed    *binlog.Feed
	sink    Sink
	drivers []kindDriver
	nowMs   func() int64
}

// New wires a runner over the given collaborators
func New(locker Locker, marks Watermarks, gw Gateway, sink Sink) *Runner {
	return &Runner{
		locker: locker,
		marks:  marks,
		feed:   binlog.NewFeed(gw),
		sink:   sink,
		drivers: []kindDriver{
			{kind: gateway.KindOrg, drv: binlog.NewDriver(binlog.NewOrgProcessor(gw))},
			{kind: gateway.KindUser, drv: binlog.NewDriver(binlog.NewUserProcessor(gw))},
		},
		nowMs: timex.NowMs,
	}
}

// RunOnce performs one watermark-driven sync run. Contention on the lock
// is not an error: the run is simply skipped. The watermark advances to
// the window end only after the sink transaction committed.
func (r *Runner) RunOnce(ctx context.Context) error {
	h, err := r.locker.TryAcquire(ctx, LockKey, lockTTL)
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if h == nil {
		log.Info().Int64("watermark", -1).Msg("sync lock held elsewhere, run skipped")
		return nil
	}
	defer func() {
		if _, err := r.locker.Release(context.WithoutCancel(ctx), h); err != nil {
			log.Error().Err(err).Msg("release sync lock failed, key will expire by TTL")
		}
	}()

	prev, err := r.marks.Get(ctx)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}
	start, end := binlog.Window(prev, r.nowMs())

	batch := binlog.NewProcessedSet()
	report := binlog.Report{}
	for _, kd := range r.drivers {
		err := r.feed.ForEach(ctx, kd.kind, start, end, func(logs []gateway.ChangeLog) error {
			b, rep := kd.drv.Run(ctx, logs)
			batch.Merge(b)
			report.Completed += rep.Completed
			report.Permanent = append(report.Permanent, rep.Permanent...)
			report.Unrecovered = append(report.Unrecovered, rep.Unrecovered...)
			return ctx.Err()
		})
		if err != nil {
			// Nothing committed, watermark untouched; the next run re-pulls
			// the same window.
			return fmt.Errorf("feed %s window [%d,%d]: %w", kd.kind, start, end, err)
		}
	}

	if err := r.commitAndRefresh(ctx, batch); err != nil {
		return err
	}

	// The watermark advances even when the window produced nothing: a quiet
	// window must not pin the feed position forever, and the 30 s backward
	// skew re-covers logs that land just behind the new position.
	if err := r.marks.Save(ctx, end); err != nil {
		return fmt.Errorf("advance watermark to %d: %w", end, err)
	}

	log.Info().
		Int64("window_start", start).
		Int64("window_end", end).
		Int("completed", report.Completed).
		Int("permanent", len(report.Permanent)).
		Int("unrecovered", len(report.Unrecovered)).
		Int("org_rows", len(batch.Orgs)).
		Int("user_rows", len(batch.Users)).
		Msg("sync run finished")
	return nil
}

// RunSynthetic drives the given ids through one entity chain as upsert
// logs. Trigger path: no lock, no watermark movement.
func (r *Runner) RunSynthetic(ctx context.Context, kind gateway.BinlogKind, ids []string) error {
	var drv *binlog.Driver
	for _, kd := range r.drivers {
		if kd.kind == kind {
			drv = kd.drv
		}
	}
	if drv == nil {
		return fmt.Errorf("unknown data type %q", kind)
	}

	logs := make([]gateway.ChangeLog, 0, len(ids))
	for _, id := range ids {
		logs = append(logs, gateway.ChangeLog{
			ID:   fmt.Sprintf("manual-%s", id),
			CID:  id,
			Type: gateway.LogTypeUpsert,
		})
	}

	batch, report := drv.Run(ctx, logs)
	if err := r.commitAndRefresh(ctx, batch); err != nil {
		return err
	}

	log.Info().
		Str("kind", string(kind)).
		Int("requested", len(ids)).
		Int("completed", report.Completed).
		Int("permanent", len(report.Permanent)).
		Msg("manual sync finished")
	return nil
}

// commitAndRefresh persists the aggregate and then rebuilds the derived
// tables for every touched id. Refresh failures are logged, never fatal.
func (r *Runner) commitAndRefresh(ctx context.Context, batch *binlog.ProcessedSet) error {
	if err := r.sink.Commit(ctx, batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	if ids := touchedUserIDs(batch); len(ids) > 0 {
		if err := r.sink.RefreshUserDerived(ctx, ids); err != nil {
			log.Error().Err(err).Msg("user derived refresh failed")
		}
	}
	if ids := touchedOrgIDs(batch); len(ids) > 0 {
		if err := r.sink.RefreshOrgDerived(ctx, ids); err != nil {
			log.Error().Err(err).Msg("org derived refresh failed")
		}
	}
	return nil
}

// touchedOrgIDs is the union of deleted and inserted org ids
func touchedOrgIDs(b *binlog.ProcessedSet) []string {
	ids := append([]string(nil), b.OrgIDsToDelete...)
	for _, o := range b.Orgs {
		ids = append(ids, o.ID)
	}
	return ids
}

func touchedUserIDs(b *binlog.ProcessedSet) []string {
	ids := append([]string(nil), b.UserIDsToDelete...)
	for _, u := range b.Users {
		ids = append(ids, u.ID)
	}
	return ids
}
