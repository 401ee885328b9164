// Package timeutil provides wall-clock time helpers shared by the
// scheduling core. All comparisons are done on a fixed reference date so
// time-of-day arithmetic is timezone and DST agnostic within a single day.
package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical civil-date layout used across the service.
const DateLayout = "2006-01-02"

var ErrBadClock = errors.New("clock value must be HH:MM")

// Clock is a timezone-naive time of day stored as minutes since midnight.
type Clock int

// ParseClock parses "HH:MM" (24 hour) into a Clock.
func ParseClock(s string) (Clock, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return Clock(h*60 + m), nil
}

// MustClock is a test/seed helper that panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Add returns the clock shifted by d, clamped to the same day.
func (c Clock) Add(d time.Duration) Clock {
	out := int(c) + int(d/time.Minute)
	if out < 0 {
		out = 0
	}
	if out > 24*60 {
		out = 24 * 60
	}
	return Clock(out)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Hours returns the duration between two clock values in fractional hours.
// An end before start yields 0; rejecting such input is the caller's job.
func Hours(start, end Clock) float64 {
	if end <= start {
		return 0
	}
	return float64(end-start) / 60.0
}

// Duration returns the same gap as Hours but as a time.Duration.
func Duration(start, end Clock) time.Duration {
	if end <= start {
		return 0
	}
	return time.Duration(end-start) * time.Minute
}

// FormatHours renders fractional hours compactly: "8h", "45m", "1h 30m".
func FormatHours(hours float64) string {
	if hours < 0 {
		hours = 0
	}
	total := int(hours*60 + 0.5)
	h, m := total/60, total%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// ParseDate parses a canonical civil date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// DateOf truncates t to its civil date in UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Combine attaches a clock time to a civil date, in UTC.
func Combine(date time.Time, c Clock) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, time.UTC)
}

// SameDate reports whether two timestamps fall on the same civil date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
