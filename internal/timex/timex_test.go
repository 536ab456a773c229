package timex

import (
	"testing"
	"time"
)

func TestDate(t *testing.T) {
	ts := time.Date(2025, 11, 3, 12, 30, 45, 0, time.UTC)
	if got := Date(ts); got != "2025-11-03" {
		t.Errorf("Date() = %v, want 2025-11-03", got)
	}
}

func TestDateTime(t *testing.T) {
	ts := time.Date(2025, 11, 3, 12, 30, 45, 0, time.UTC)
	if got := DateTime(ts); got != "2025-11-03 12:30:45" {
		t.Errorf("DateTime() = %v, want 2025-11-03 12:30:45", got)
	}
}

func TestYearMonth(t *testing.T) {
	ts := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	y, m := YearMonth(ts)
	if y != 2025 || m != 1 {
		t.Errorf("YearMonth() = (%d, %d), want (2025, 1)", y, m)
	}
}

func TestNowMs(t *testing.T) {
	before := NowMs()
	after := NowMs()

	if after < before {
		t.Error("NowMs() went backwards in time")
	}
	if after-before > 1000 {
		t.Errorf("NowMs() took more than 1 second between calls: %d ms", after-before)
	}
}
