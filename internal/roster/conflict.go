package roster

import (
	"fmt"
	"sort"
	"time"

	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// ConflictType classifies a detected scheduling conflict.
type ConflictType string

const (
	ConflictOverlap       ConflictType = "time_overlap"
	ConflictShortBreak    ConflictType = "insufficient_break"
	ConflictDuplicateSlot ConflictType = "duplicate_slot"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict is transient, computed per request and never persisted.
type Conflict struct {
	Type        ConflictType `json:"type"`
	Severity    Severity     `json:"severity"`
	Description string       `json:"description"`
}

// DefaultMinBreak is the fallback minimum gap between consecutive bookings.
const DefaultMinBreak = 30 * time.Minute

// Overlaps applies the half-open interval test: bookings that merely touch
// (one ends exactly when the other starts) do not overlap.
func Overlaps(a, b Booking) bool {
	if !timeutil.SameDate(a.Date, b.Date) {
		return false
	}
	return a.Start < b.End && a.End > b.Start
}

// DetectConflicts checks one candidate booking against the existing bookings
// of the same worker.
//
// Findings are advisory. Creation is never blocked at the data layer; the
// caller surfaces the records and the user decides whether to proceed. Do not
// turn these into hard validation.
func DetectConflicts(candidate Booking, existing []Booking, minBreak time.Duration) []Conflict {
	if minBreak <= 0 {
		minBreak = DefaultMinBreak
	}

	sorted := sortedBookings(existing)
	var out []Conflict

	for _, other := range sorted {
		if other.ID == candidate.ID {
			continue
		}
		if timeutil.SameDate(candidate.Date, other.Date) &&
			candidate.Start == other.Start {
			out = append(out, duplicateSlotConflict(candidate, other))
			continue
		}
		if Overlaps(candidate, other) {
			out = append(out, overlapConflict(candidate, other))
			continue
		}
		if c, ok := breakConflict(candidate, other, minBreak); ok {
			out = append(out, c)
		}
	}
	return out
}

// SweepConflicts runs pairwise detection across a whole set of bookings,
// typically a freshly generated draft. The result is deterministic for a
// fixed input set regardless of input order.
func SweepConflicts(all []Booking, minBreak time.Duration) []Conflict {
	if minBreak <= 0 {
		minBreak = DefaultMinBreak
	}

	sorted := sortedBookings(all)
	var out []Conflict

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if a.WorkerID != b.WorkerID || !timeutil.SameDate(a.Date, b.Date) {
				continue
			}
			switch {
			case a.Start == b.Start:
				out = append(out, duplicateSlotConflict(a, b))
			case Overlaps(a, b):
				out = append(out, overlapConflict(a, b))
			default:
				if c, ok := breakConflict(a, b, minBreak); ok {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

func overlapConflict(a, b Booking) Conflict {
	return Conflict{
		Type:     ConflictOverlap,
		Severity: SeverityHigh,
		Description: fmt.Sprintf("time overlap on %s: %s-%s clashes with %s-%s (booking %s)",
			a.Date.Format(timeutil.DateLayout), a.Start, a.End, b.Start, b.End, shortID(b)),
	}
}

func duplicateSlotConflict(a, b Booking) Conflict {
	return Conflict{
		Type:     ConflictDuplicateSlot,
		Severity: SeverityHigh,
		Description: fmt.Sprintf("duplicate slot on %s at %s: bookings %s and %s share the same start",
			a.Date.Format(timeutil.DateLayout), a.Start, shortID(a), shortID(b)),
	}
}

// breakConflict reports a gap shorter than minBreak between two same-day,
// non-overlapping bookings, in either order.
func breakConflict(a, b Booking, minBreak time.Duration) (Conflict, bool) {
	if !timeutil.SameDate(a.Date, b.Date) {
		return Conflict{}, false
	}
	first, second := a, b
	if b.Start < a.Start {
		first, second = b, a
	}
	if second.Start < first.End {
		return Conflict{}, false
	}
	gap := timeutil.Duration(first.End, second.Start)
	if gap >= minBreak {
		return Conflict{}, false
	}
	return Conflict{
		Type:     ConflictShortBreak,
		Severity: SeverityMedium,
		Description: fmt.Sprintf("only %s between bookings on %s (%s ends %s, %s starts %s); minimum break is %s",
			timeutil.FormatHours(gap.Hours()), first.Date.Format(timeutil.DateLayout),
			shortID(first), first.End, shortID(second), second.Start,
			timeutil.FormatHours(minBreak.Hours())),
	}, true
}

func sortedBookings(in []Booking) []Booking {
	out := make([]Booking, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func shortID(b Booking) string {
	s := b.ID.String()
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}
