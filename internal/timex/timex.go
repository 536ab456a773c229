package timex

import "time"

// NowMs returns current Unix milliseconds timestamp (UTC)
func NowMs() int64 {
	return time.Now().UTC().UnixMilli()
}

// Date formats a time as the bare-date stamp used by the org/user tables
func Date(t time.Time) string {
	return t.Format("2006-01-02")
}

// DateTime formats a time as the second-resolution stamp used by MSS rows
func DateTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// Yesterday returns yesterday's date stamp, the default window for push tasks
func Yesterday() string {
	return Date(time.Now().AddDate(0, 0, -1))
}

// YearMonth splits a time into the (year, month) pair stamped onto records
func YearMonth(t time.Time) (int, int) {
	return t.Year(), int(t.Month())
}
