package binlog

import (
	"context"
	"fmt"

	"github.com/dxxy/mss-sync/internal/gateway"
)

// Window tunables. The backward skew tolerates gateway clock drift; the
// forward cap bounds single-run work.
const (
	BackwardSkewMs = 30_000
	ForwardCapMs   = 300_000
)

// Window computes the pull window for a run given the previous watermark
func Window(prevMs, nowMs int64) (startMs, endMs int64) {
	startMs = prevMs - BackwardSkewMs
	endMs = prevMs + ForwardCapMs
	if endMs > nowMs {
		endMs = nowMs
	}
	return startMs, endMs
}

// Finder is the feed's slice of the gateway client
type Finder interface {
	BinlogFind(ctx context.Context, kind gateway.BinlogKind, startMs, endMs int64, page int) (*gateway.BinlogPage, error)
}

// Feed pulls change logs page by page
type Feed struct {
	gw Finder
}

// NewFeed creates a feed over the given gateway
func NewFeed(gw Finder) *Feed {
	return &Feed{gw: gw}
}

// ForEach streams every page of logs in [startMs, endMs] to sink, in feed
// order. Stops on the last page, an empty page, or a sink error.
func (f *Feed) ForEach(ctx context.Context, kind gateway.BinlogKind, startMs, endMs int64, sink func([]gateway.ChangeLog) error) error {
	page := 1
	for {
		res, err := f.gw.BinlogFind(ctx, kind, startMs, endMs, page)
		if err != nil {
			return fmt.Errorf("binlog find %s page %d: %w", kind, page, err)
		}
		if res == nil || len(res.Items) == 0 {
			return nil
		}
		if err := sink(res.Items); err != nil {
			return err
		}
		if res.Page.CurrentPage >= res.Page.TotalPage {
			return nil
		}
		// A reply whose currentPage lags the requested page would loop on
		// the same page forever.
		next := res.Page.CurrentPage + 1
		if next <= page {
			return fmt.Errorf("binlog find %s: page did not advance past %d (reply currentPage %d, totalPage %d)",
				kind, page, res.Page.CurrentPage, res.Page.TotalPage)
		}
		page = next
	}
}
