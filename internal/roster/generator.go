package roster

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// Assignment is a funded support arrangement to plan sessions for.
type Assignment struct {
	WorkerID      uuid.UUID `json:"worker_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	Role          string    `json:"role"`
	WeeklyHours   float64   `json:"weekly_hours"`
	Services      []string  `json:"services"`
}

// Preferences captures a participant's scheduling preferences.
type Preferences struct {
	PreferredDays []time.Weekday `json:"preferred_days"`
	BaseStart     timeutil.Clock `json:"base_start"`
	Location      string         `json:"location"`
	Requirements  string         `json:"requirements,omitempty"`
}

// GeneratorSettings configures draft generation. Generation is a pure
// function of assignments, preferences and these settings, so regenerating
// with identical inputs yields an identical draft.
type GeneratorSettings struct {
	HorizonStart       time.Time     // first day of the planning horizon
	HorizonWeeks       int           // default 2
	SessionLength      time.Duration // default 2h
	SessionGap         time.Duration // day-internal spacing between a worker's sessions
	MinBreak           time.Duration // conflict sweep policy, default 30m
	AutoAssignLocation bool          // default the location to the participant's address
}

func (s GeneratorSettings) withDefaults() GeneratorSettings {
	if s.HorizonWeeks <= 0 {
		s.HorizonWeeks = 2
	}
	if s.SessionLength <= 0 {
		s.SessionLength = 2 * time.Hour
	}
	if s.SessionGap <= 0 {
		s.SessionGap = s.SessionLength + DefaultMinBreak
	}
	if s.MinBreak <= 0 {
		s.MinBreak = DefaultMinBreak
	}
	return s
}

// Draft is a fully materialized multi-week schedule proposal. Conflicts are
// collected across the whole draft rather than failing on the first finding,
// so the caller can review and hand-edit every session before confirming.
type Draft struct {
	Sessions  []Appointment `json:"sessions"`
	Conflicts []Conflict    `json:"conflicts"`
}

// draftNamespace makes draft session IDs deterministic per (worker, slot),
// which keeps regeneration idempotent.
var draftNamespace = uuid.MustParse("5ba3f3e4-9d3f-4e7b-9c60-1b8f6a2d7c11")

var defaultDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// Generate produces a best-effort draft schedule for the given assignments.
//
// Per assignment it plans ceil(weeklyHours / sessionLength) sessions per
// week, spreads them roughly evenly across the preferred days, offsets start
// times per same-day session index, and cycles through the assignment's
// service list. The draft is always fully materialized; conflicts are
// advisory findings appended at the end.
func Generate(assignments []Assignment, prefs map[uuid.UUID]Preferences, participants map[uuid.UUID]Participant, settings GeneratorSettings) Draft {
	settings = settings.withDefaults()
	horizon := timeutil.DateOf(settings.HorizonStart)

	ordered := make([]Assignment, len(assignments))
	copy(ordered, assignments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].WorkerID != ordered[j].WorkerID {
			return ordered[i].WorkerID.String() < ordered[j].WorkerID.String()
		}
		return ordered[i].ParticipantID.String() < ordered[j].ParticipantID.String()
	})

	var draft Draft
	for _, a := range ordered {
		if a.WeeklyHours <= 0 {
			continue
		}
		draft.Sessions = append(draft.Sessions, planAssignment(a, prefs[a.ParticipantID], participants[a.ParticipantID], horizon, settings)...)
	}

	bookings := make([]Booking, 0, len(draft.Sessions))
	for _, s := range draft.Sessions {
		bookings = append(bookings, s.Booking())
	}
	draft.Conflicts = SweepConflicts(bookings, settings.MinBreak)
	return draft
}

func planAssignment(a Assignment, p Preferences, participant Participant, horizon time.Time, settings GeneratorSettings) []Appointment {
	sessionsPerWeek := int(math.Ceil(a.WeeklyHours / settings.SessionLength.Hours()))
	if sessionsPerWeek < 1 {
		sessionsPerWeek = 1
	}

	days := p.PreferredDays
	if len(days) == 0 {
		days = defaultDays
	}

	baseStart := p.BaseStart
	if baseStart == 0 {
		baseStart = timeutil.MustClock("09:00")
	}

	location := p.Location
	if settings.AutoAssignLocation && participant.Address != nil && *participant.Address != "" {
		location = *participant.Address
	}

	var out []Appointment
	for week := 0; week < settings.HorizonWeeks; week++ {
		perDay := make(map[time.Weekday]int, len(days))
		for idx := 0; idx < sessionsPerWeek; idx++ {
			day := days[(idx*len(days))/sessionsPerWeek%len(days)]
			date := dateForWeekday(horizon, week, day)

			start := baseStart.Add(time.Duration(perDay[day]) * settings.SessionGap)
			end := start.Add(settings.SessionLength)
			perDay[day]++

			service := a.Role
			if len(a.Services) > 0 {
				service = a.Services[idx%len(a.Services)]
			}

			out = append(out, Appointment{
				ID:            draftSessionID(a, week, idx),
				ParticipantID: a.ParticipantID,
				WorkerID:      a.WorkerID,
				Date:          date,
				Start:         start,
				End:           end,
				ServiceType:   service,
				Location:      location,
				LocationKind:  LocationHome,
				Status:        ApptPending,
				Priority:      PriorityMedium,
			})
		}
	}
	return out
}

// dateForWeekday finds the given weekday within week number `week` counted
// from the horizon start.
func dateForWeekday(horizon time.Time, week int, day time.Weekday) time.Time {
	offset := (int(day) - int(horizon.Weekday()) + 7) % 7
	return horizon.AddDate(0, 0, week*7+offset)
}

func draftSessionID(a Assignment, week, idx int) uuid.UUID {
	key := fmt.Sprintf("%s|%s|%d|%d", a.WorkerID, a.ParticipantID, week, idx)
	return uuid.NewSHA1(draftNamespace, []byte(key))
}
