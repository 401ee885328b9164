package timeutil

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Clock
		wantErr bool
	}{
		{name: "midnight", input: "00:00", want: 0},
		{name: "morning", input: "09:30", want: 9*60 + 30},
		{name: "end of day", input: "23:59", want: 23*60 + 59},
		{name: "surrounding whitespace", input: " 08:15 ", want: 8*60 + 15},
		{name: "hour out of range", input: "24:00", wantErr: true},
		{name: "minute out of range", input: "10:60", wantErr: true},
		{name: "missing separator", input: "0930", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "not numeric", input: "ab:cd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseClock(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseClock(%q) expected error, got %v", tt.input, got)
				}
				if !errors.Is(err, ErrBadClock) {
					t.Errorf("ParseClock(%q) error = %v, want ErrBadClock", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestClockString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		clock Clock
		want  string
	}{
		{0, "00:00"},
		{9*60 + 5, "09:05"},
		{17 * 60, "17:00"},
		{23*60 + 59, "23:59"},
	}

	for _, tt := range tests {
		if got := tt.clock.String(); got != tt.want {
			t.Errorf("Clock(%d).String() = %q, want %q", tt.clock, got, tt.want)
		}
	}
}

func TestClockAddClamps(t *testing.T) {
	t.Parallel()

	if got := MustClock("23:00").Add(2 * time.Hour); got != Clock(24*60) {
		t.Errorf("Add past midnight = %v, want clamp to 24:00", got)
	}
	if got := MustClock("01:00").Add(-2 * time.Hour); got != 0 {
		t.Errorf("Add below zero = %v, want clamp to 00:00", got)
	}
	if got := MustClock("09:00").Add(90 * time.Minute); got != MustClock("10:30") {
		t.Errorf("Add(90m) = %v, want 10:30", got)
	}
}

func TestClockJSONRoundTrip(t *testing.T) {
	t.Parallel()

	type payload struct {
		Start Clock `json:"start_time"`
	}

	b, err := json.Marshal(payload{Start: MustClock("14:30")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"start_time":"14:30"}` {
		t.Fatalf("marshal = %s, want {\"start_time\":\"14:30\"}", b)
	}

	var out payload
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Start != MustClock("14:30") {
		t.Errorf("round trip = %v, want 14:30", out.Start)
	}

	if err := json.Unmarshal([]byte(`{"start_time":"25:00"}`), &out); err == nil {
		t.Error("unmarshal of 25:00 should fail")
	}
}

func TestHours(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		start string
		end   string
		want  float64
	}{
		{name: "full shift", start: "09:00", end: "17:00", want: 8},
		{name: "half hour", start: "10:00", end: "10:30", want: 0.5},
		{name: "zero length", start: "10:00", end: "10:00", want: 0},
		{name: "inverted range clamps to zero", start: "17:00", end: "09:00", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Hours(MustClock(tt.start), MustClock(tt.end))
			if got != tt.want {
				t.Errorf("Hours(%s, %s) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
			if got < 0 {
				t.Errorf("Hours(%s, %s) = %v, must never be negative", tt.start, tt.end, got)
			}
		})
	}
}

func TestFormatHours(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hours float64
		want  string
	}{
		{8, "8h"},
		{0.75, "45m"},
		{1.5, "1h 30m"},
		{0, "0m"},
		{-2, "0m"},
		{2.25, "2h 15m"},
	}

	for _, tt := range tests {
		if got := FormatHours(tt.hours); got != tt.want {
			t.Errorf("FormatHours(%v) = %q, want %q", tt.hours, got, tt.want)
		}
	}
}

func TestDateHelpers(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2025-01-06")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Weekday() != time.Monday {
		t.Errorf("2025-01-06 weekday = %v, want Monday", d.Weekday())
	}

	stamp := time.Date(2025, 1, 6, 18, 42, 13, 0, time.UTC)
	if got := DateOf(stamp); !got.Equal(d) {
		t.Errorf("DateOf(%v) = %v, want %v", stamp, got, d)
	}

	combined := Combine(d, MustClock("09:30"))
	want := time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC)
	if !combined.Equal(want) {
		t.Errorf("Combine = %v, want %v", combined, want)
	}

	if !SameDate(stamp, combined) {
		t.Error("SameDate should ignore time of day")
	}
	if SameDate(stamp, stamp.AddDate(0, 0, 1)) {
		t.Error("SameDate across days should be false")
	}
}
