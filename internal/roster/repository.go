package roster

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrWorkerNotFound      = errors.New("support worker not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrEntryNotFound       = errors.New("roster entry not found")

	// ErrStoreUnavailable wraps transport failures against the persistence
	// backend. It is never converted into an empty success result.
	ErrStoreUnavailable = errors.New("persistence backend unavailable")
)

// AppointmentFilter narrows appointment listings. Nil fields are ignored.
type AppointmentFilter struct {
	WorkerID      *uuid.UUID
	ParticipantID *uuid.UUID
	From          *time.Time // civil date, inclusive
	To            *time.Time // civil date, inclusive
	Status        *AppointmentStatus
	Limit         int
	Offset        int
}

// EntryFilter narrows roster entry listings. Nil fields are ignored.
type EntryFilter struct {
	WorkerID *uuid.UUID
	From     *time.Time
	To       *time.Time
	Status   *EntryStatus
	Limit    int
	Offset   int
}

// Repository contains every persistence interaction the scheduling core
// needs. Two implementations exist: PgRepository for deployments that own
// the database, and RestRepository against the external persistence API.
// CachedRepository wraps either with a short-lived Redis read cache.
type Repository interface {
	GetParticipant(ctx context.Context, id uuid.UUID) (*Participant, error)
	ListParticipants(ctx context.Context) ([]Participant, error)

	GetWorker(ctx context.Context, id uuid.UUID) (*SupportWorker, error)
	ListWorkers(ctx context.Context) ([]SupportWorker, error)

	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	PatchAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error)
	CreateEntry(ctx context.Context, e Entry) (*Entry, error)
	UpdateEntry(ctx context.Context, e Entry) (*Entry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error

	// ReplaceOccurrences swaps the expanded occurrence set of an entry.
	// The occurrence worker calls this after recurrence expansion.
	ReplaceOccurrences(ctx context.Context, entryID uuid.UUID, occ []Occurrence) error
}
