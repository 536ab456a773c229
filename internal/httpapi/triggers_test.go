package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dxxy/mss-sync/internal/gateway"
)

type syncCall struct {
	kind gateway.BinlogKind
	ids  []string
}

type fakeSync struct {
	calls chan syncCall
}

func (f *fakeSync) RunSynthetic(_ context.Context, kind gateway.BinlogKind, ids []string) error {
	f.calls <- syncCall{kind: kind, ids: ids}
	return nil
}

type pushCall struct {
	begin, end string
	ids        []string
}

type fakePush struct {
	calls chan pushCall
}

func (f *fakePush) RunByDateRange(_ context.Context, begin, end string) error {
	f.calls <- pushCall{begin: begin, end: end}
	return nil
}

func (f *fakePush) RunByTrainIDs(_ context.Context, ids []string) error {
	f.calls <- pushCall{ids: ids}
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeSync, *fakePush) {
	t.Helper()

	sync := &fakeSync{calls: make(chan syncCall, 1)}
	push := &fakePush{calls: make(chan pushCall, 1)}
	srv := httptest.NewServer((&Server{Sync: sync, Push: push}).Routes())
	t.Cleanup(srv.Close)
	return srv, sync, push
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func waitSync(t *testing.T, f *fakeSync) syncCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("sync trigger never ran")
		return syncCall{}
	}
}

func waitPush(t *testing.T, f *fakePush) pushCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("push trigger never ran")
		return pushCall{}
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestTriggerSync(t *testing.T) {
	srv, sync, _ := newTestServer(t)

	resp := post(t, srv.URL+"/binlog/sync", `{"dataType":"org","ids":["O1","O2"]}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	call := waitSync(t, sync)
	if call.kind != gateway.KindOrg {
		t.Errorf("kind = %s, want org", call.kind)
	}
	if len(call.ids) != 2 || call.ids[0] != "O1" {
		t.Errorf("ids = %v, want [O1 O2]", call.ids)
	}
}

func TestTriggerSyncValidation(t *testing.T) {
	srv, sync, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "unknown dataType", body: `{"dataType":"team","ids":["X"]}`},
		{name: "missing ids", body: `{"dataType":"user","ids":[]}`},
		{name: "malformed json", body: `{"dataType":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/binlog/sync", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}

	select {
	case c := <-sync.calls:
		t.Errorf("rejected request still triggered a run: %+v", c)
	default:
	}
}

func TestTriggerPushByTrainIDs(t *testing.T) {
	srv, _, push := newTestServer(t)

	resp := post(t, srv.URL+"/pxb/pushByDate", `{"trainIds":["T1","T2"]}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	call := waitPush(t, push)
	if len(call.ids) != 2 {
		t.Errorf("trainIds = %v, want two ids", call.ids)
	}
}

func TestTriggerPushByDate(t *testing.T) {
	srv, _, push := newTestServer(t)

	resp := post(t, srv.URL+"/pxb/pushByDate", `{"beginDate":"2026-08-20","endDate":"2026-08-22"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	call := waitPush(t, push)
	if call.begin != "2026-08-20" || call.end != "2026-08-22" {
		t.Errorf("range = [%s, %s], want [2026-08-20, 2026-08-22]", call.begin, call.end)
	}
}

func TestTriggerPushEndDateDefaultsToBegin(t *testing.T) {
	srv, _, push := newTestServer(t)

	resp := post(t, srv.URL+"/pxb/pushByDate", `{"beginDate":"2026-08-20"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	call := waitPush(t, push)
	if call.begin != "2026-08-20" || call.end != "2026-08-20" {
		t.Errorf("range = [%s, %s], want a single-day window", call.begin, call.end)
	}
}

func TestTriggerPushFormValidation(t *testing.T) {
	srv, _, push := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "both forms", body: `{"beginDate":"2026-08-20","trainIds":["T1"]}`},
		{name: "neither form", body: `{}`},
		{name: "endDate without beginDate", body: `{"endDate":"2026-08-20"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/pxb/pushByDate", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}

	select {
	case c := <-push.calls:
		t.Errorf("rejected request still triggered a run: %+v", c)
	default:
	}
}
