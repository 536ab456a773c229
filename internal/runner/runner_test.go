package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dxxy/mss-sync/internal/binlog"
	"github.com/dxxy/mss-sync/internal/gateway"
	"github.com/dxxy/mss-sync/internal/redislock"
)

type fakeLocker struct {
	contended  bool
	acquireErr error
	acquires   atomic.Int32
	releases   atomic.Int32
}

func (f *fakeLocker) TryAcquire(_ context.Context, key string, _ time.Duration) (*redislock.Handle, error) {
	f.acquires.Add(1)
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	if f.contended {
		return nil, nil
	}
	return &redislock.Handle{Key: key, Token: "tok"}, nil
}

func (f *fakeLocker) Release(_ context.Context, _ *redislock.Handle) (bool, error) {
	f.releases.Add(1)
	return true, nil
}

type fakeMarks struct {
	prev    int64
	saved   []int64
	saveErr error
}

func (f *fakeMarks) Get(context.Context) (int64, error) { return f.prev, nil }

func (f *fakeMarks) Save(_ context.Context, ts int64) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, ts)
	return nil
}

type fakeSink struct {
	committed     []*binlog.ProcessedSet
	commitErr     error
	userRefreshes [][]string
	orgRefreshes  [][]string
	refreshErr    error
}

func (f *fakeSink) Commit(_ context.Context, set *binlog.ProcessedSet) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, set)
	return nil
}

func (f *fakeSink) RefreshUserDerived(_ context.Context, ids []string) error {
	f.userRefreshes = append(f.userRefreshes, ids)
	return f.refreshErr
}

func (f *fakeSink) RefreshOrgDerived(_ context.Context, ids []string) error {
	f.orgRefreshes = append(f.orgRefreshes, ids)
	return f.refreshErr
}

// fakeGateway serves a fixed single page per kind and resolves every chain
// step from the cid.
type fakeGateway struct {
	logs  map[gateway.BinlogKind][]gateway.ChangeLog
	finds int
}

func (f *fakeGateway) BinlogFind(_ context.Context, kind gateway.BinlogKind, _, _ int64, page int) (*gateway.BinlogPage, error) {
	f.finds++
	if page > 1 {
		return nil, nil
	}
	return &gateway.BinlogPage{
		Page:  gateway.PageInfo{CurrentPage: 1, TotalPage: 1},
		Items: f.logs[kind],
	}, nil
}

func (f *fakeGateway) OrgLoadByID(_ context.Context, cid string) (*gateway.Org, error) {
	return &gateway.Org{ID: cid}, nil
}

func (f *fakeGateway) OrgTreeLoadByID(_ context.Context, cid string) (*gateway.OrgTree, error) {
	return &gateway.OrgTree{ID: cid}, nil
}

func (f *fakeGateway) MssOrgTranslate(_ context.Context, cid string) (*gateway.MssOrgMapping, error) {
	return &gateway.MssOrgMapping{Code: cid, MssCode: "M-" + cid}, nil
}

func (f *fakeGateway) MssOrgQuery(_ context.Context, mssCode string) ([]gateway.MssOrg, error) {
	return []gateway.MssOrg{{ID: "X-" + mssCode, HrCode: "H-" + mssCode}}, nil
}

func (f *fakeGateway) UserLoadByID(_ context.Context, cid string) (*gateway.User, error) {
	return &gateway.User{ID: cid}, nil
}

func (f *fakeGateway) MssUserTranslate(_ context.Context, cid string) (*gateway.MssUserMapping, error) {
	return &gateway.MssUserMapping{UID: cid, HrCode: "HR-" + cid}, nil
}

func (f *fakeGateway) MssUserQuery(_ context.Context, hrCode string) ([]gateway.MssUser, error) {
	return []gateway.MssUser{{ID: "MU-" + hrCode, HrCode: hrCode, JobNumber: "J-" + hrCode}}, nil
}

func newTestRunner(locker *fakeLocker, marks *fakeMarks, gw *fakeGateway, sink *fakeSink, nowMs int64) *Runner {
	r := New(locker, marks, gw, sink)
	r.nowMs = func() int64 { return nowMs }
	return r
}

func TestRunOnce_SkipsOnContention(t *testing.T) {
	locker := &fakeLocker{contended: true}
	sink := &fakeSink{}
	r := newTestRunner(locker, &fakeMarks{}, &fakeGateway{}, sink, 1_000_000)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v, contention must not be an error", err)
	}
	if len(sink.committed) != 0 {
		t.Error("sink touched while another holder owns the lock")
	}
	if locker.releases.Load() != 0 {
		t.Error("release called without an acquisition")
	}
}

func TestRunOnce_CommitsAndAdvancesWatermark(t *testing.T) {
	locker := &fakeLocker{}
	marks := &fakeMarks{prev: 1_000_000}
	gw := &fakeGateway{logs: map[gateway.BinlogKind][]gateway.ChangeLog{
		gateway.KindOrg:  {{ID: "L1", CID: "O1", Type: gateway.LogTypeUpsert}},
		gateway.KindUser: {{ID: "L2", CID: "U1", Type: gateway.LogTypeDelete}},
	}}
	sink := &fakeSink{}
	now := int64(1_000_000 + 60_000)
	r := newTestRunner(locker, marks, gw, sink, now)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(sink.committed) != 1 {
		t.Fatalf("sink committed %d batches, want 1", len(sink.committed))
	}
	batch := sink.committed[0]
	if len(batch.Orgs) != 1 || batch.Orgs[0].ID != "O1" {
		t.Errorf("batch orgs = %+v, want the upserted org", batch.Orgs)
	}
	if len(batch.Users) != 0 {
		t.Errorf("batch users = %+v, want none for a delete-only log", batch.Users)
	}
	if len(batch.UserIDsToDelete) != 1 || batch.UserIDsToDelete[0] != "U1" {
		t.Errorf("user deletes = %v, want [U1]", batch.UserIDsToDelete)
	}

	// now < prev+5m, so the window ends at now.
	if len(marks.saved) != 1 || marks.saved[0] != now {
		t.Errorf("watermark saves = %v, want [%d]", marks.saved, now)
	}
	if got := locker.releases.Load(); got != 1 {
		t.Errorf("lock released %d times, want exactly once", got)
	}

	if len(sink.orgRefreshes) != 1 || len(sink.userRefreshes) != 1 {
		t.Fatalf("refreshes = %d org / %d user, want 1/1", len(sink.orgRefreshes), len(sink.userRefreshes))
	}
	if sink.userRefreshes[0][0] != "U1" {
		t.Errorf("user refresh ids = %v, want the deleted id included", sink.userRefreshes[0])
	}
}

func TestRunOnce_EmptyWindowStillAdvances(t *testing.T) {
	locker := &fakeLocker{}
	marks := &fakeMarks{prev: 1_000_000}
	sink := &fakeSink{}
	now := int64(1_060_000)
	r := newTestRunner(locker, marks, &fakeGateway{}, sink, now)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	// A quiet window moves the feed position forward; the empty commit is
	// a no-op but still counts as committed.
	if len(marks.saved) != 1 || marks.saved[0] != now {
		t.Errorf("watermark saves = %v, want [%d]", marks.saved, now)
	}
	if len(sink.orgRefreshes) != 0 || len(sink.userRefreshes) != 0 {
		t.Error("derived refresh ran without touched ids")
	}
	if got := locker.releases.Load(); got != 1 {
		t.Errorf("lock released %d times, want exactly once", got)
	}
}

func TestRunOnce_CommitFailureKeepsWatermark(t *testing.T) {
	locker := &fakeLocker{}
	marks := &fakeMarks{prev: 1_000_000}
	gw := &fakeGateway{logs: map[gateway.BinlogKind][]gateway.ChangeLog{
		gateway.KindOrg: {{ID: "L1", CID: "O1", Type: gateway.LogTypeUpsert}},
	}}
	sink := &fakeSink{commitErr: errors.New("deadlock")}
	r := newTestRunner(locker, marks, gw, sink, 2_000_000)

	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() error = nil, want commit failure")
	}
	if len(marks.saved) != 0 {
		t.Errorf("watermark saved %v after failed commit", marks.saved)
	}
	if got := locker.releases.Load(); got != 1 {
		t.Errorf("lock released %d times, want exactly once even on failure", got)
	}
}

func TestRunOnce_RefreshFailureIsNotFatal(t *testing.T) {
	locker := &fakeLocker{}
	marks := &fakeMarks{prev: 1_000_000}
	gw := &fakeGateway{logs: map[gateway.BinlogKind][]gateway.ChangeLog{
		gateway.KindOrg: {{ID: "L1", CID: "O1", Type: gateway.LogTypeUpsert}},
	}}
	sink := &fakeSink{refreshErr: errors.New("mc_org_show is locked")}
	r := newTestRunner(locker, marks, gw, sink, 2_000_000)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v, derived refresh must be best-effort", err)
	}
	if len(marks.saved) != 1 {
		t.Errorf("watermark saves = %v, want the run to still advance", marks.saved)
	}
}

func TestRunSynthetic(t *testing.T) {
	locker := &fakeLocker{}
	marks := &fakeMarks{prev: 1_000_000}
	gw := &fakeGateway{}
	sink := &fakeSink{}
	r := newTestRunner(locker, marks, gw, sink, 2_000_000)

	if err := r.RunSynthetic(context.Background(), gateway.KindOrg, []string{"O1", "O2"}); err != nil {
		t.Fatalf("RunSynthetic() error = %v", err)
	}

	if len(sink.committed) != 1 {
		t.Fatalf("sink committed %d batches, want 1", len(sink.committed))
	}
	if got := len(sink.committed[0].Orgs); got != 2 {
		t.Errorf("batch orgs = %d, want 2 synthesized upserts", got)
	}
	// Manual runs bypass the lock and never move the watermark.
	if locker.acquires.Load() != 0 {
		t.Error("manual run acquired the sync lock")
	}
	if len(marks.saved) != 0 {
		t.Errorf("watermark saves = %v, want none", marks.saved)
	}

	if err := r.RunSynthetic(context.Background(), gateway.BinlogKind("team"), []string{"X"}); err == nil {
		t.Error("RunSynthetic() with unknown kind: error = nil")
	}
}

func TestSchedulerFiresImmediatelyAndStops(t *testing.T) {
	locker := &fakeLocker{}
	marks := &fakeMarks{}
	sink := &fakeSink{}
	gw := &fakeGateway{}
	r := newTestRunner(locker, marks, gw, sink, 1_000)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(r, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for locker.acquires.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler never fired")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
