// Package recurrence expands roster recurrence rules into concrete dates.
// Expansion is delegated to RFC 5545 RRULE semantics via teambition/rrule-go,
// so monthly rules anchored on the 29th-31st simply skip months that are too
// short, and weekly interval windows follow the standard week-based counting.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// Pattern is the repetition unit of a rule.
type Pattern string

const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
	// PatternUnknown marks an unrecognized value from an external payload.
	// Callers must reject it at the boundary instead of silently defaulting.
	PatternUnknown Pattern = "unknown"
)

// ParsePattern maps an external string onto a Pattern.
func ParsePattern(s string) Pattern {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return PatternDaily
	case "weekly":
		return PatternWeekly
	case "monthly":
		return PatternMonthly
	default:
		return PatternUnknown
	}
}

var (
	ErrUnknownPattern = errors.New("recurrence: unknown pattern")
	ErrBadInterval    = errors.New("recurrence: interval must be >= 1")
	ErrBadRange       = errors.New("recurrence: end date before start date")
)

// Rule describes how a roster entry repeats.
//
// Weekdays applies to weekly rules only. An empty set is valid: the rule
// then fires on the start date's weekday alone. Source payloads routinely
// omit the weekday list, so this degrades rather than errors.
type Rule struct {
	Pattern  Pattern        `json:"pattern"`
	Interval int            `json:"interval"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	Start    time.Time      `json:"start_date"`
	End      time.Time      `json:"end_date"` // inclusive
}

func (r Rule) Validate() error {
	switch r.Pattern {
	case PatternDaily, PatternWeekly, PatternMonthly:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPattern, r.Pattern)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: got %d", ErrBadInterval, r.Interval)
	}
	if timeutil.DateOf(r.End).Before(timeutil.DateOf(r.Start)) {
		return ErrBadRange
	}
	return nil
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Expand produces every concrete date the rule covers, ordered and
// deduplicated. Every returned date d satisfies Start <= d <= End, and the
// result is finite and deterministic for fixed inputs.
func (r Rule) Expand() ([]time.Time, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	opt := rrule.ROption{
		Interval: r.Interval,
		Dtstart:  timeutil.DateOf(r.Start),
		Until:    timeutil.DateOf(r.End),
	}

	switch r.Pattern {
	case PatternDaily:
		opt.Freq = rrule.DAILY
	case PatternWeekly:
		opt.Freq = rrule.WEEKLY
		seen := make(map[time.Weekday]bool, len(r.Weekdays))
		for _, wd := range r.Weekdays {
			if seen[wd] {
				continue
			}
			seen[wd] = true
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
		}
	case PatternMonthly:
		opt.Freq = rrule.MONTHLY
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}

	dates := rule.All()
	for i := range dates {
		dates[i] = timeutil.DateOf(dates[i])
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Covers reports whether date is one of the rule's occurrence dates. Used to
// validate that persisted occurrence instances stay consistent with their
// parent rule.
func (r Rule) Covers(date time.Time) (bool, error) {
	day := timeutil.DateOf(date)
	if day.Before(timeutil.DateOf(r.Start)) || day.After(timeutil.DateOf(r.End)) {
		return false, nil
	}
	dates, err := r.Expand()
	if err != nil {
		return false, err
	}
	for _, d := range dates {
		if d.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}
