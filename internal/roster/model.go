package roster

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/recurrence"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// External payloads carry free-form status strings. Every enum here parses
// unrecognized values into an explicit Unknown variant at the boundary rather
// than silently defaulting.

type AppointmentStatus string

const (
	ApptPending    AppointmentStatus = "pending"
	ApptConfirmed  AppointmentStatus = "confirmed"
	ApptInProgress AppointmentStatus = "in-progress"
	ApptCompleted  AppointmentStatus = "completed"
	ApptCancelled  AppointmentStatus = "cancelled"
	ApptNoShow     AppointmentStatus = "no-show"
	ApptUnknown    AppointmentStatus = "unknown"
)

func ParseAppointmentStatus(s string) AppointmentStatus {
	switch AppointmentStatus(strings.ToLower(strings.TrimSpace(s))) {
	case ApptPending:
		return ApptPending
	case ApptConfirmed:
		return ApptConfirmed
	case ApptInProgress:
		return ApptInProgress
	case ApptCompleted:
		return ApptCompleted
	case ApptCancelled:
		return ApptCancelled
	case ApptNoShow:
		return ApptNoShow
	default:
		return ApptUnknown
	}
}

type EntryStatus string

const (
	EntryChecked    EntryStatus = "checked"
	EntryConfirmed  EntryStatus = "confirmed"
	EntryNotified   EntryStatus = "notified"
	EntryCancelled  EntryStatus = "cancelled"
	EntryInProgress EntryStatus = "in-progress"
	EntryCompleted  EntryStatus = "completed"
	EntryUnknown    EntryStatus = "unknown"
)

func ParseEntryStatus(s string) EntryStatus {
	switch EntryStatus(strings.ToLower(strings.TrimSpace(s))) {
	case EntryChecked:
		return EntryChecked
	case EntryConfirmed:
		return EntryConfirmed
	case EntryNotified:
		return EntryNotified
	case EntryCancelled:
		return EntryCancelled
	case EntryInProgress:
		return EntryInProgress
	case EntryCompleted:
		return EntryCompleted
	default:
		return EntryUnknown
	}
}

type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityMedium  Priority = "medium"
	PriorityLow     Priority = "low"
	PriorityUnknown Priority = "unknown"
)

func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityMedium:
		return PriorityMedium
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityUnknown
	}
}

type LocationKind string

const (
	LocationHome      LocationKind = "home"
	LocationCommunity LocationKind = "community"
	LocationFacility  LocationKind = "facility"
	LocationVirtual   LocationKind = "virtual"
	LocationUnknown   LocationKind = "unknown"
)

func ParseLocationKind(s string) LocationKind {
	switch LocationKind(strings.ToLower(strings.TrimSpace(s))) {
	case LocationHome:
		return LocationHome
	case LocationCommunity:
		return LocationCommunity
	case LocationFacility:
		return LocationFacility
	case LocationVirtual:
		return LocationVirtual
	default:
		return LocationUnknown
	}
}

type WorkerStatus string

const (
	WorkerActive   WorkerStatus = "active"
	WorkerInactive WorkerStatus = "inactive"
	WorkerOnLeave  WorkerStatus = "on-leave"
	WorkerUnknown  WorkerStatus = "unknown"
)

func ParseWorkerStatus(s string) WorkerStatus {
	switch WorkerStatus(strings.ToLower(strings.TrimSpace(s))) {
	case WorkerActive:
		return WorkerActive
	case WorkerInactive:
		return WorkerInactive
	case WorkerOnLeave:
		return WorkerOnLeave
	default:
		return WorkerUnknown
	}
}

// Participant is directory data owned by an external system; the scheduling
// core reads it for matching and location defaults only.
type Participant struct {
	ID      uuid.UUID
	Name    string
	Contact *string
	Address *string
}

type SupportWorker struct {
	ID      uuid.UUID
	Name    string
	Contact *string
	Skills  []string
	Status  WorkerStatus
}

type Appointment struct {
	ID            uuid.UUID
	ParticipantID uuid.UUID
	WorkerID      uuid.UUID
	Date          time.Time // civil date, UTC midnight
	Start         timeutil.Clock
	End           timeutil.Clock
	ServiceType   string
	Location      string
	LocationKind  LocationKind
	Status        AppointmentStatus
	Priority      Priority
	Notes         *string
	Recurrence    *recurrence.Rule
	Notify        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Task is a per-shift checklist item on a roster entry.
type Task struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Occurrence is a concrete instance expanded from a recurrence rule.
type Occurrence struct {
	Date   time.Time      `json:"date"`
	Start  timeutil.Clock `json:"start_time"`
	End    timeutil.Clock `json:"end_time"`
	Status EntryStatus    `json:"status"`
}

// Entry is a support-worker shift record. Group sessions embed more than one
// participant reference.
type Entry struct {
	ID             uuid.UUID
	WorkerID       uuid.UUID
	Date           time.Time
	Start          timeutil.Clock
	End            timeutil.Clock
	ServiceTag     string
	Status         EntryStatus
	ParticipantIDs []uuid.UUID
	Tasks          []Task
	WorkerNotes    *string
	Rules          []recurrence.Rule
	Occurrences    []Occurrence
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Booking is the minimal shape conflict detection and availability work on.
// Both appointments and roster entries reduce to it.
type Booking struct {
	ID       uuid.UUID
	WorkerID uuid.UUID
	Date     time.Time
	Start    timeutil.Clock
	End      timeutil.Clock
}

func (a Appointment) Booking() Booking {
	return Booking{ID: a.ID, WorkerID: a.WorkerID, Date: timeutil.DateOf(a.Date), Start: a.Start, End: a.End}
}

func (e Entry) Booking() Booking {
	return Booking{ID: e.ID, WorkerID: e.WorkerID, Date: timeutil.DateOf(e.Date), Start: e.Start, End: e.End}
}
