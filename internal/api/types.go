package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/recurrence"
	"github.com/carebridge/ndis-roster/internal/roster"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// Requests. Validation happens in two layers: structural checks via
// validator tags, then domain parsing (clocks, enums, rules) which rejects
// anything malformed before the store is touched.

type RuleRequest struct {
	Pattern  string `json:"pattern" validate:"required"`
	Interval int    `json:"interval" validate:"min=1"`
	Weekdays []int  `json:"weekdays" validate:"dive,min=0,max=6"`
	Start    string `json:"start_date" validate:"required,datetime=2006-01-02"`
	End      string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type CreateAppointmentRequest struct {
	ParticipantID string       `json:"participant_id" validate:"required,uuid"`
	WorkerID      string       `json:"worker_id" validate:"required,uuid"`
	Date          string       `json:"date" validate:"required,datetime=2006-01-02"`
	Start         string       `json:"start_time" validate:"required"`
	End           string       `json:"end_time" validate:"required"`
	ServiceType   string       `json:"service_type" validate:"required"`
	Location      string       `json:"location"`
	LocationKind  string       `json:"location_kind"`
	Status        string       `json:"status"`
	Priority      string       `json:"priority"`
	Notes         *string      `json:"notes"`
	Recurrence    *RuleRequest `json:"recurrence"`
	Notify        bool         `json:"notify"`
}

type TaskRequest struct {
	Title string `json:"title" validate:"required"`
	Done  bool   `json:"done"`
}

type OccurrenceRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Start  string `json:"start_time" validate:"required"`
	End    string `json:"end_time" validate:"required"`
	Status string `json:"status"`
}

type CreateEntryRequest struct {
	WorkerID     string              `json:"worker_id" validate:"required,uuid"`
	Date         string              `json:"date" validate:"required,datetime=2006-01-02"`
	Start        string              `json:"start_time" validate:"required"`
	End          string              `json:"end_time" validate:"required"`
	ServiceTag   string              `json:"eligibility"`
	Status       string              `json:"status"`
	Participants []string            `json:"participants" validate:"dive,uuid"`
	Tasks        []TaskRequest       `json:"tasks" validate:"dive"`
	WorkerNotes  *string             `json:"worker_notes"`
	Rules        []RuleRequest       `json:"recurrences" validate:"dive"`
	Occurrences  []OccurrenceRequest `json:"instances" validate:"dive"`
}

type PatchStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type AssignmentRequest struct {
	WorkerID      string   `json:"worker_id" validate:"required,uuid"`
	ParticipantID string   `json:"participant_id" validate:"required,uuid"`
	Role          string   `json:"role"`
	WeeklyHours   float64  `json:"weekly_hours" validate:"gt=0"`
	Services      []string `json:"services"`
}

type PreferencesRequest struct {
	ParticipantID string `json:"participant_id" validate:"required,uuid"`
	PreferredDays []int  `json:"preferred_days" validate:"dive,min=0,max=6"`
	BaseStart     string `json:"base_start"`
	Location      string `json:"location"`
	Requirements  string `json:"requirements"`
}

type GenerateScheduleRequest struct {
	Assignments  []AssignmentRequest  `json:"assignments" validate:"required,min=1,dive"`
	Preferences  []PreferencesRequest `json:"preferences" validate:"dive"`
	HorizonStart string               `json:"horizon_start" validate:"required,datetime=2006-01-02"`
	HorizonWeeks int                  `json:"horizon_weeks" validate:"min=0"`
}

type ConfirmScheduleRequest struct {
	Sessions []CreateAppointmentRequest `json:"sessions" validate:"required,min=1,dive"`
}

// Responses

type AppointmentResponse struct {
	ID            uuid.UUID        `json:"id"`
	ParticipantID uuid.UUID        `json:"participant_id"`
	WorkerID      uuid.UUID        `json:"worker_id"`
	Date          string           `json:"date"`
	Start         string           `json:"start_time"`
	End           string           `json:"end_time"`
	Duration      string           `json:"duration"`
	ServiceType   string           `json:"service_type"`
	Location      string           `json:"location"`
	LocationKind  string           `json:"location_kind"`
	Status        string           `json:"status"`
	Priority      string           `json:"priority"`
	Notes         *string          `json:"notes,omitempty"`
	Recurrence    *recurrence.Rule `json:"recurrence,omitempty"`
	Notify        bool             `json:"notify"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type EntryResponse struct {
	ID           uuid.UUID           `json:"id"`
	WorkerID     uuid.UUID           `json:"worker_id"`
	Date         string              `json:"date"`
	Start        string              `json:"start_time"`
	End          string              `json:"end_time"`
	Duration     string              `json:"duration"`
	ServiceTag   string              `json:"eligibility"`
	Status       string              `json:"status"`
	Participants []uuid.UUID         `json:"participants,omitempty"`
	Tasks        []roster.Task       `json:"tasks,omitempty"`
	WorkerNotes  *string             `json:"worker_notes,omitempty"`
	Rules        []recurrence.Rule   `json:"recurrences,omitempty"`
	Occurrences  []roster.Occurrence `json:"instances,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type AppointmentWithConflicts struct {
	Appointment AppointmentResponse `json:"appointment"`
	Conflicts   []roster.Conflict   `json:"conflicts"`
}

type EntryWithConflicts struct {
	Entry     EntryResponse     `json:"entry"`
	Conflicts []roster.Conflict `json:"conflicts"`
}

type AvailabilityResponse struct {
	WorkerID  uuid.UUID `json:"worker_id"`
	Date      string    `json:"date"`
	Start     string    `json:"start_time"`
	End       string    `json:"end_time"`
	Available bool      `json:"available"`
}

type DraftResponse struct {
	Sessions  []AppointmentResponse `json:"sessions"`
	Conflicts []roster.Conflict     `json:"conflicts"`
}

type ConfirmResponse struct {
	Created   []AppointmentResponse `json:"created"`
	Conflicts []roster.Conflict     `json:"conflicts"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Converters

func apptResponse(a roster.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		ParticipantID: a.ParticipantID,
		WorkerID:      a.WorkerID,
		Date:          a.Date.Format(timeutil.DateLayout),
		Start:         a.Start.String(),
		End:           a.End.String(),
		Duration:      timeutil.FormatHours(timeutil.Hours(a.Start, a.End)),
		ServiceType:   a.ServiceType,
		Location:      a.Location,
		LocationKind:  string(a.LocationKind),
		Status:        string(a.Status),
		Priority:      string(a.Priority),
		Notes:         a.Notes,
		Recurrence:    a.Recurrence,
		Notify:        a.Notify,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func apptResponses(in []roster.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(in))
	for _, a := range in {
		out = append(out, apptResponse(a))
	}
	return out
}

func entryResponse(e roster.Entry) EntryResponse {
	return EntryResponse{
		ID:           e.ID,
		WorkerID:     e.WorkerID,
		Date:         e.Date.Format(timeutil.DateLayout),
		Start:        e.Start.String(),
		End:          e.End.String(),
		Duration:     timeutil.FormatHours(timeutil.Hours(e.Start, e.End)),
		ServiceTag:   e.ServiceTag,
		Status:       string(e.Status),
		Participants: e.ParticipantIDs,
		Tasks:        e.Tasks,
		WorkerNotes:  e.WorkerNotes,
		Rules:        e.Rules,
		Occurrences:  e.Occurrences,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func ruleFromRequest(req RuleRequest) (recurrence.Rule, error) {
	start, err := timeutil.ParseDate(req.Start)
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := timeutil.ParseDate(req.End)
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("end_date: %w", err)
	}
	rule := recurrence.Rule{
		Pattern:  recurrence.ParsePattern(req.Pattern),
		Interval: req.Interval,
		Start:    start,
		End:      end,
	}
	for _, wd := range req.Weekdays {
		rule.Weekdays = append(rule.Weekdays, time.Weekday(wd))
	}
	return rule, rule.Validate()
}

func appointmentFromRequest(req CreateAppointmentRequest) (roster.Appointment, error) {
	participantID, err := uuid.Parse(req.ParticipantID)
	if err != nil {
		return roster.Appointment{}, fmt.Errorf("participant_id: %w", err)
	}
	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		return roster.Appointment{}, fmt.Errorf("worker_id: %w", err)
	}
	date, err := timeutil.ParseDate(req.Date)
	if err != nil {
		return roster.Appointment{}, fmt.Errorf("date: %w", err)
	}
	start, err := timeutil.ParseClock(req.Start)
	if err != nil {
		return roster.Appointment{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := timeutil.ParseClock(req.End)
	if err != nil {
		return roster.Appointment{}, fmt.Errorf("end_time: %w", err)
	}

	a := roster.Appointment{
		ParticipantID: participantID,
		WorkerID:      workerID,
		Date:          date,
		Start:         start,
		End:           end,
		ServiceType:   req.ServiceType,
		Location:      req.Location,
		LocationKind:  roster.ParseLocationKind(req.LocationKind),
		Status:        roster.ParseAppointmentStatus(req.Status),
		Priority:      roster.ParsePriority(req.Priority),
		Notes:         req.Notes,
		Notify:        req.Notify,
	}
	if a.LocationKind == roster.LocationUnknown && req.LocationKind == "" {
		a.LocationKind = roster.LocationHome
	}
	if req.Recurrence != nil {
		rule, err := ruleFromRequest(*req.Recurrence)
		if err != nil {
			return roster.Appointment{}, fmt.Errorf("recurrence: %w", err)
		}
		a.Recurrence = &rule
	}
	return a, nil
}

func entryFromRequest(req CreateEntryRequest) (roster.Entry, error) {
	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		return roster.Entry{}, fmt.Errorf("worker_id: %w", err)
	}
	date, err := timeutil.ParseDate(req.Date)
	if err != nil {
		return roster.Entry{}, fmt.Errorf("date: %w", err)
	}
	start, err := timeutil.ParseClock(req.Start)
	if err != nil {
		return roster.Entry{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := timeutil.ParseClock(req.End)
	if err != nil {
		return roster.Entry{}, fmt.Errorf("end_time: %w", err)
	}

	e := roster.Entry{
		WorkerID:    workerID,
		Date:        date,
		Start:       start,
		End:         end,
		ServiceTag:  req.ServiceTag,
		Status:      roster.ParseEntryStatus(req.Status),
		WorkerNotes: req.WorkerNotes,
	}
	for _, p := range req.Participants {
		id, err := uuid.Parse(p)
		if err != nil {
			return roster.Entry{}, fmt.Errorf("participants: %w", err)
		}
		e.ParticipantIDs = append(e.ParticipantIDs, id)
	}
	for _, t := range req.Tasks {
		e.Tasks = append(e.Tasks, roster.Task{Title: t.Title, Done: t.Done})
	}
	for _, r := range req.Rules {
		rule, err := ruleFromRequest(r)
		if err != nil {
			return roster.Entry{}, fmt.Errorf("recurrences: %w", err)
		}
		e.Rules = append(e.Rules, rule)
	}
	for _, o := range req.Occurrences {
		occDate, err := timeutil.ParseDate(o.Date)
		if err != nil {
			return roster.Entry{}, fmt.Errorf("instances date: %w", err)
		}
		occStart, err := timeutil.ParseClock(o.Start)
		if err != nil {
			return roster.Entry{}, fmt.Errorf("instances start_time: %w", err)
		}
		occEnd, err := timeutil.ParseClock(o.End)
		if err != nil {
			return roster.Entry{}, fmt.Errorf("instances end_time: %w", err)
		}
		e.Occurrences = append(e.Occurrences, roster.Occurrence{
			Date:   occDate,
			Start:  occStart,
			End:    occEnd,
			Status: roster.ParseEntryStatus(o.Status),
		})
	}
	return e, nil
}

func draftRequestFromAPI(req GenerateScheduleRequest) (roster.DraftRequest, error) {
	out := roster.DraftRequest{
		HorizonStart: req.HorizonStart,
		HorizonWeeks: req.HorizonWeeks,
		Preferences:  make(map[uuid.UUID]roster.Preferences, len(req.Preferences)),
	}
	for _, a := range req.Assignments {
		workerID, err := uuid.Parse(a.WorkerID)
		if err != nil {
			return roster.DraftRequest{}, fmt.Errorf("assignment worker_id: %w", err)
		}
		participantID, err := uuid.Parse(a.ParticipantID)
		if err != nil {
			return roster.DraftRequest{}, fmt.Errorf("assignment participant_id: %w", err)
		}
		out.Assignments = append(out.Assignments, roster.Assignment{
			WorkerID:      workerID,
			ParticipantID: participantID,
			Role:          a.Role,
			WeeklyHours:   a.WeeklyHours,
			Services:      a.Services,
		})
	}
	for _, p := range req.Preferences {
		participantID, err := uuid.Parse(p.ParticipantID)
		if err != nil {
			return roster.DraftRequest{}, fmt.Errorf("preference participant_id: %w", err)
		}
		prefs := roster.Preferences{
			Location:     p.Location,
			Requirements: p.Requirements,
		}
		if p.BaseStart != "" {
			base, err := timeutil.ParseClock(p.BaseStart)
			if err != nil {
				return roster.DraftRequest{}, fmt.Errorf("preference base_start: %w", err)
			}
			prefs.BaseStart = base
		}
		for _, wd := range p.PreferredDays {
			prefs.PreferredDays = append(prefs.PreferredDays, time.Weekday(wd))
		}
		out.Preferences[participantID] = prefs
	}
	return out, nil
}
