package roster

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/timeutil"
)

func booking(id byte, day string, start, end string) Booking {
	d, err := timeutil.ParseDate(day)
	if err != nil {
		panic(err)
	}
	return Booking{
		ID:       uuid.UUID{id},
		WorkerID: uuid.UUID{0xAA},
		Date:     d,
		Start:    timeutil.MustClock(start),
		End:      timeutil.MustClock(end),
	}
}

func TestOverlaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    Booking
		b    Booking
		want bool
	}{
		{
			name: "partial overlap",
			a:    booking(1, "2025-01-06", "09:00", "11:00"),
			b:    booking(2, "2025-01-06", "10:00", "12:00"),
			want: true,
		},
		{
			name: "containment",
			a:    booking(1, "2025-01-06", "09:00", "17:00"),
			b:    booking(2, "2025-01-06", "10:00", "11:00"),
			want: true,
		},
		{
			name: "adjacent bookings do not overlap",
			a:    booking(1, "2025-01-06", "09:00", "11:00"),
			b:    booking(2, "2025-01-06", "11:00", "13:00"),
			want: false,
		},
		{
			name: "disjoint same day",
			a:    booking(1, "2025-01-06", "09:00", "10:00"),
			b:    booking(2, "2025-01-06", "14:00", "15:00"),
			want: false,
		},
		{
			name: "same times different day",
			a:    booking(1, "2025-01-06", "09:00", "11:00"),
			b:    booking(2, "2025-01-07", "09:00", "11:00"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps(a, b) = %v, want %v", got, tt.want)
			}
			// The test must be symmetric.
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlaps(b, a) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectConflictsOverlap(t *testing.T) {
	t.Parallel()

	candidate := booking(1, "2025-01-06", "09:00", "11:00")
	existing := []Booking{booking(2, "2025-01-06", "10:00", "12:00")}

	got := DetectConflicts(candidate, existing, DefaultMinBreak)
	if len(got) != 1 {
		t.Fatalf("expected exactly one conflict, got %d: %v", len(got), got)
	}
	if got[0].Type != ConflictOverlap {
		t.Errorf("conflict type = %q, want %q", got[0].Type, ConflictOverlap)
	}
	if got[0].Severity != SeverityHigh {
		t.Errorf("overlap severity = %q, want high", got[0].Severity)
	}
}

func TestDetectConflictsDuplicateSlot(t *testing.T) {
	t.Parallel()

	candidate := booking(1, "2025-01-06", "09:00", "10:00")
	existing := []Booking{booking(2, "2025-01-06", "09:00", "11:00")}

	got := DetectConflicts(candidate, existing, DefaultMinBreak)
	if len(got) != 1 {
		t.Fatalf("expected exactly one conflict, got %d: %v", len(got), got)
	}
	if got[0].Type != ConflictDuplicateSlot {
		t.Errorf("conflict type = %q, want %q", got[0].Type, ConflictDuplicateSlot)
	}
	if got[0].Severity != SeverityHigh {
		t.Errorf("duplicate slot severity = %q, want high", got[0].Severity)
	}
}

func TestDetectConflictsShortBreak(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing Booking
		want     int
	}{
		{
			name:     "15 minute gap flags",
			existing: booking(2, "2025-01-06", "11:15", "12:00"),
			want:     1,
		},
		{
			name:     "back to back flags",
			existing: booking(2, "2025-01-06", "11:00", "12:00"),
			want:     1,
		},
		{
			name:     "exactly the minimum is fine",
			existing: booking(2, "2025-01-06", "11:30", "12:30"),
			want:     0,
		},
		{
			name:     "earlier booking with short gap flags",
			existing: booking(2, "2025-01-06", "08:00", "08:45"),
			want:     1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			candidate := booking(1, "2025-01-06", "09:00", "11:00")
			got := DetectConflicts(candidate, []Booking{tt.existing}, 30*time.Minute)
			if len(got) != tt.want {
				t.Fatalf("got %d conflicts %v, want %d", len(got), got, tt.want)
			}
			if tt.want == 1 {
				if got[0].Type != ConflictShortBreak {
					t.Errorf("conflict type = %q, want %q", got[0].Type, ConflictShortBreak)
				}
				if got[0].Severity != SeverityMedium {
					t.Errorf("short break severity = %q, want medium", got[0].Severity)
				}
			}
		})
	}
}

func TestDetectConflictsSkipsSelf(t *testing.T) {
	t.Parallel()

	candidate := booking(1, "2025-01-06", "09:00", "11:00")
	// The same record coming back from the store must not conflict with
	// itself on update.
	got := DetectConflicts(candidate, []Booking{candidate}, DefaultMinBreak)
	if len(got) != 0 {
		t.Errorf("booking conflicted with itself: %v", got)
	}
}

func TestDetectConflictsZeroMinBreakUsesDefault(t *testing.T) {
	t.Parallel()

	candidate := booking(1, "2025-01-06", "09:00", "11:00")
	existing := []Booking{booking(2, "2025-01-06", "11:20", "12:00")}

	got := DetectConflicts(candidate, existing, 0)
	if len(got) != 1 || got[0].Type != ConflictShortBreak {
		t.Fatalf("expected short break under the %s default, got %v", DefaultMinBreak, got)
	}
}

func TestSweepConflictsDeterministic(t *testing.T) {
	t.Parallel()

	a := booking(1, "2025-01-06", "09:00", "11:00")
	b := booking(2, "2025-01-06", "10:00", "12:00")
	c := booking(3, "2025-01-06", "14:00", "15:00")

	first := SweepConflicts([]Booking{a, b, c}, DefaultMinBreak)
	second := SweepConflicts([]Booking{c, b, a}, DefaultMinBreak)

	if len(first) != 1 {
		t.Fatalf("expected one conflict from the triple, got %d: %v", len(first), first)
	}
	if len(first) != len(second) {
		t.Fatalf("sweep not deterministic: %d vs %d conflicts", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("sweep order dependent at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSweepConflictsIgnoresOtherWorkers(t *testing.T) {
	t.Parallel()

	a := booking(1, "2025-01-06", "09:00", "11:00")
	b := booking(2, "2025-01-06", "10:00", "12:00")
	b.WorkerID = uuid.UUID{0xBB}

	if got := SweepConflicts([]Booking{a, b}, DefaultMinBreak); len(got) != 0 {
		t.Errorf("cross-worker bookings should not conflict: %v", got)
	}
}
