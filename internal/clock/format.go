package clock

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// ElapsedSeconds returns the whole seconds between start and now, truncated
// toward zero. A now before start yields 0.
func ElapsedSeconds(start, now time.Time) int64 {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// FormatHMS renders seconds as HH:MM:SS. Hours grow past two digits when needed.
func FormatHMS(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatHours renders seconds as decimal hours, e.g. "1.5h".
func FormatHours(secs int64) string {
	return fmt.Sprintf("%.1fh", float64(secs)/3600)
}

// DayKey is the calendar date of t in t's own location.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// ParseDay parses a YYYY-MM-DD key as midnight UTC.
func ParseDay(key string) (time.Time, error) {
	return time.Parse(dayLayout, key)
}

// DayBounds returns the first and last instant of t's day in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// WindowForDays returns [now - days, now].
func WindowForDays(now time.Time, days int) (time.Time, time.Time) {
	return now.AddDate(0, 0, -days), now
}
