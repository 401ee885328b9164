package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/carebridge/ndis-roster/internal/timeutil"
)

func date(s string) time.Time {
	d, err := timeutil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParsePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  Pattern
	}{
		{"daily", PatternDaily},
		{"Weekly", PatternWeekly},
		{" MONTHLY ", PatternMonthly},
		{"fortnightly", PatternUnknown},
		{"", PatternUnknown},
	}

	for _, tt := range tests {
		if got := ParsePattern(tt.input); got != tt.want {
			t.Errorf("ParsePattern(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRuleValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{
			name: "valid weekly",
			rule: Rule{Pattern: PatternWeekly, Interval: 1, Start: date("2025-01-06"), End: date("2025-01-19")},
		},
		{
			name:    "unknown pattern",
			rule:    Rule{Pattern: PatternUnknown, Interval: 1, Start: date("2025-01-06"), End: date("2025-01-19")},
			wantErr: ErrUnknownPattern,
		},
		{
			name:    "zero interval",
			rule:    Rule{Pattern: PatternDaily, Interval: 0, Start: date("2025-01-06"), End: date("2025-01-19")},
			wantErr: ErrBadInterval,
		},
		{
			name:    "end before start",
			rule:    Rule{Pattern: PatternDaily, Interval: 1, Start: date("2025-01-19"), End: date("2025-01-06")},
			wantErr: ErrBadRange,
		},
		{
			name: "single day window",
			rule: Rule{Pattern: PatternDaily, Interval: 1, Start: date("2025-01-06"), End: date("2025-01-06")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.rule.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandWeekly(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Pattern:  PatternWeekly,
		Interval: 1,
		Weekdays: []time.Weekday{time.Monday, time.Wednesday},
		Start:    date("2025-01-06"),
		End:      date("2025-01-19"),
	}

	got, err := rule.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []time.Time{
		date("2025-01-06"),
		date("2025-01-08"),
		date("2025-01-13"),
		date("2025-01-15"),
	}
	assertDates(t, got, want)
}

func TestExpandWeeklyWithoutWeekdaysUsesAnchor(t *testing.T) {
	t.Parallel()

	// 2025-01-07 is a Tuesday; with no weekday set the rule fires on
	// Tuesdays only.
	rule := Rule{
		Pattern:  PatternWeekly,
		Interval: 1,
		Start:    date("2025-01-07"),
		End:      date("2025-01-21"),
	}

	got, err := rule.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []time.Time{date("2025-01-07"), date("2025-01-14"), date("2025-01-21")}
	assertDates(t, got, want)
}

func TestExpandWeeklyInterval(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Pattern:  PatternWeekly,
		Interval: 2,
		Weekdays: []time.Weekday{time.Friday},
		Start:    date("2025-01-03"),
		End:      date("2025-01-31"),
	}

	got, err := rule.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []time.Time{date("2025-01-03"), date("2025-01-17"), date("2025-01-31")}
	assertDates(t, got, want)
}

func TestExpandDaily(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Pattern:  PatternDaily,
		Interval: 1,
		Start:    date("2025-03-29"),
		End:      date("2025-04-02"),
	}

	got, err := rule.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	if len(got) != 5 {
		t.Fatalf("daily over 5 days produced %d dates", len(got))
	}
	if !got[0].Equal(date("2025-03-29")) || !got[4].Equal(date("2025-04-02")) {
		t.Errorf("daily bounds = %v .. %v", got[0], got[len(got)-1])
	}
}

func TestExpandMonthlySkipsShortMonths(t *testing.T) {
	t.Parallel()

	// Anchored on the 31st: February, April and June have no 31st, so
	// those months produce no occurrence rather than drifting.
	rule := Rule{
		Pattern:  PatternMonthly,
		Interval: 1,
		Start:    date("2025-01-31"),
		End:      date("2025-06-30"),
	}

	got, err := rule.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	want := []time.Time{date("2025-01-31"), date("2025-03-31"), date("2025-05-31")}
	assertDates(t, got, want)
}

func TestExpandBounds(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Pattern:  PatternDaily,
		Interval: 3,
		Start:    date("2025-02-01"),
		End:      date("2025-02-28"),
	}

	got, err := rule.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one occurrence")
	}

	for _, d := range got {
		if d.Before(rule.Start) || d.After(rule.End) {
			t.Errorf("occurrence %v outside inclusive window %v..%v", d, rule.Start, rule.End)
		}
	}

	// Start date itself always qualifies for a daily rule.
	if !got[0].Equal(rule.Start) {
		t.Errorf("first occurrence = %v, want window start", got[0])
	}
}

func TestExpandDeterministic(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Pattern:  PatternWeekly,
		Interval: 1,
		Weekdays: []time.Weekday{time.Wednesday, time.Monday, time.Monday},
		Start:    date("2025-01-06"),
		End:      date("2025-02-03"),
	}

	first, err := rule.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	second, err := rule.Expand()
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	assertDates(t, second, first)

	for i := 1; i < len(first); i++ {
		if !first[i-1].Before(first[i]) {
			t.Errorf("dates not strictly ascending at %d: %v then %v", i, first[i-1], first[i])
		}
	}
}

func TestCovers(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Pattern:  PatternWeekly,
		Interval: 1,
		Weekdays: []time.Weekday{time.Monday},
		Start:    date("2025-01-06"),
		End:      date("2025-01-27"),
	}

	tests := []struct {
		name string
		day  string
		want bool
	}{
		{name: "first monday", day: "2025-01-06", want: true},
		{name: "last monday", day: "2025-01-27", want: true},
		{name: "tuesday", day: "2025-01-07", want: false},
		{name: "monday before window", day: "2024-12-30", want: false},
		{name: "monday after window", day: "2025-02-03", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := rule.Covers(date(tt.day))
			if err != nil {
				t.Fatalf("Covers(%s): %v", tt.day, err)
			}
			if got != tt.want {
				t.Errorf("Covers(%s) = %v, want %v", tt.day, got, tt.want)
			}
		})
	}
}

func assertDates(t *testing.T, got, want []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d dates %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("date[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
