package roster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/config"
	"github.com/carebridge/ndis-roster/internal/hub"
	redisclient "github.com/carebridge/ndis-roster/internal/redis"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// Event kinds published on the scheduling topic.
const (
	EventAppointmentCreated = "appointment_created"
	EventAppointmentUpdated = "appointment_updated"
	EventAppointmentDeleted = "appointment_deleted"
	EventStatusChanged      = "appointment_status_changed"
	EventEntryCreated       = "roster_entry_created"
	EventEntryUpdated       = "roster_entry_updated"
	EventEntryDeleted       = "roster_entry_deleted"
)

var (
	ErrInvalidTimeRange = errors.New("end time must be after start time")
	ErrMissingWorker    = errors.New("a support worker reference is required")
	ErrWorkerBusy       = errors.New("another roster write for this worker is in flight, please retry")
	ErrOccurrenceDrift  = errors.New("occurrence date not covered by any recurrence rule")
)

// Broadcaster decouples the service from the hub for testing.
type Broadcaster interface {
	Broadcast(topic, eventType string, data any)
}

// Service orchestrates roster operations: it validates input, persists
// through the repository, annotates results with advisory conflicts, and
// pushes state changes to connected clients. It is constructed by the
// composition root and injected where needed; there is no package-level
// instance.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	bus    Broadcaster
	policy config.Policy
}

func NewService(repo Repository, locker redisclient.Locker, bus Broadcaster, policy config.Policy) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		bus:    bus,
		policy: policy,
	}
}

// CreateAppointment persists a new appointment and returns it together with
// any conflict findings for the worker's day.
//
// Conflicts never block the write: surfacing them and letting the user decide
// is the contract the rest of the product is built on.
func (s *Service) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, []Conflict, error) {
	if err := s.validateAppointment(&a); err != nil {
		return nil, nil, err
	}

	conflicts, err := s.conflictsFor(ctx, a.Booking())
	if err != nil {
		return nil, nil, err
	}

	var created *Appointment
	err = s.locker.WithWorkerLock(ctx, a.WorkerID, func(lockCtx context.Context) error {
		var createErr error
		created, createErr = s.repo.CreateAppointment(lockCtx, a)
		if createErr != nil {
			return fmt.Errorf("create appointment: %w", createErr)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, nil, ErrWorkerBusy
		}
		return nil, nil, err
	}

	s.bus.Broadcast(hub.TopicScheduling, EventAppointmentCreated, created)
	return created, conflicts, nil
}

func (s *Service) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, []Conflict, error) {
	if err := s.validateAppointment(&a); err != nil {
		return nil, nil, err
	}

	conflicts, err := s.conflictsFor(ctx, a.Booking())
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.repo.UpdateAppointment(ctx, a)
	if err != nil {
		return nil, nil, fmt.Errorf("update appointment: %w", err)
	}

	s.bus.Broadcast(hub.TopicScheduling, EventAppointmentUpdated, updated)
	return updated, conflicts, nil
}

func (s *Service) PatchAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if status == ApptUnknown {
		return nil, fmt.Errorf("unrecognized appointment status")
	}
	updated, err := s.repo.PatchAppointmentStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("patch appointment status: %w", err)
	}
	s.bus.Broadcast(hub.TopicScheduling, EventStatusChanged, updated)
	return updated, nil
}

// DeleteAppointment removes an appointment. Deleting an unknown id surfaces
// ErrAppointmentNotFound and emits no broadcast.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	s.bus.Broadcast(hub.TopicScheduling, EventAppointmentDeleted, map[string]any{"id": id})
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListAppointments(ctx, f)
}

// CreateEntry persists a roster entry after checking the recurrence
// invariant: every embedded occurrence must fall on a date its parent rules
// actually generate.
func (s *Service) CreateEntry(ctx context.Context, e Entry) (*Entry, []Conflict, error) {
	if err := s.validateEntry(&e); err != nil {
		return nil, nil, err
	}

	conflicts, err := s.conflictsFor(ctx, e.Booking())
	if err != nil {
		return nil, nil, err
	}

	var created *Entry
	err = s.locker.WithWorkerLock(ctx, e.WorkerID, func(lockCtx context.Context) error {
		var createErr error
		created, createErr = s.repo.CreateEntry(lockCtx, e)
		if createErr != nil {
			return fmt.Errorf("create roster entry: %w", createErr)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, nil, ErrWorkerBusy
		}
		return nil, nil, err
	}

	s.bus.Broadcast(hub.TopicScheduling, EventEntryCreated, created)
	return created, conflicts, nil
}

func (s *Service) UpdateEntry(ctx context.Context, e Entry) (*Entry, []Conflict, error) {
	if err := s.validateEntry(&e); err != nil {
		return nil, nil, err
	}

	conflicts, err := s.conflictsFor(ctx, e.Booking())
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.repo.UpdateEntry(ctx, e)
	if err != nil {
		return nil, nil, fmt.Errorf("update roster entry: %w", err)
	}

	s.bus.Broadcast(hub.TopicScheduling, EventEntryUpdated, updated)
	return updated, conflicts, nil
}

func (s *Service) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("delete roster entry: %w", err)
	}
	s.bus.Broadcast(hub.TopicScheduling, EventEntryDeleted, map[string]any{"id": id})
	return nil
}

func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetEntry(ctx, id)
}

func (s *Service) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListEntries(ctx, f)
}

func (s *Service) ListParticipants(ctx context.Context) ([]Participant, error) {
	return s.repo.ListParticipants(ctx)
}

func (s *Service) ListWorkers(ctx context.Context) ([]SupportWorker, error) {
	return s.repo.ListWorkers(ctx)
}

// conflictsFor collects advisory findings for a candidate booking against
// the worker's existing bookings on the same date.
func (s *Service) conflictsFor(ctx context.Context, candidate Booking) ([]Conflict, error) {
	date := timeutil.DateOf(candidate.Date)

	existing, err := s.workerBookings(ctx, candidate.WorkerID, date, date)
	if err != nil {
		return nil, err
	}
	return DetectConflicts(candidate, existing, s.policy.MinBreak), nil
}

// workerBookings merges a worker's appointments and roster entries over an
// inclusive date range into the Booking shape conflict logic works on.
func (s *Service) workerBookings(ctx context.Context, workerID uuid.UUID, from, to time.Time) ([]Booking, error) {
	appts, err := s.repo.ListAppointments(ctx, AppointmentFilter{WorkerID: &workerID, From: &from, To: &to, Limit: 200})
	if err != nil {
		return nil, fmt.Errorf("list appointments for conflict check: %w", err)
	}
	entries, err := s.repo.ListEntries(ctx, EntryFilter{WorkerID: &workerID, From: &from, To: &to, Limit: 200})
	if err != nil {
		return nil, fmt.Errorf("list roster entries for conflict check: %w", err)
	}

	out := make([]Booking, 0, len(appts)+len(entries))
	for _, a := range appts {
		if a.Status == ApptCancelled || a.Status == ApptNoShow {
			continue
		}
		out = append(out, a.Booking())
	}
	for _, e := range entries {
		if e.Status == EntryCancelled {
			continue
		}
		out = append(out, e.Booking())
	}
	return out, nil
}

func (s *Service) validateAppointment(a *Appointment) error {
	if a.WorkerID == uuid.Nil {
		return ErrMissingWorker
	}
	if a.End <= a.Start {
		return ErrInvalidTimeRange
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" || a.Status == ApptUnknown {
		a.Status = ApptPending
	}
	if a.Priority == "" || a.Priority == PriorityUnknown {
		a.Priority = PriorityMedium
	}
	a.Date = timeutil.DateOf(a.Date)
	if a.Recurrence != nil {
		if err := a.Recurrence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validateEntry(e *Entry) error {
	if e.WorkerID == uuid.Nil {
		return ErrMissingWorker
	}
	if e.End <= e.Start {
		return ErrInvalidTimeRange
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" || e.Status == EntryUnknown {
		e.Status = EntryChecked
	}
	e.Date = timeutil.DateOf(e.Date)

	for _, r := range e.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	for _, occ := range e.Occurrences {
		covered := false
		for _, r := range e.Rules {
			ok, err := r.Covers(occ.Date)
			if err != nil {
				return err
			}
			if ok {
				covered = true
				break
			}
		}
		if !covered {
			return fmt.Errorf("%w: %s", ErrOccurrenceDrift, occ.Date.Format(timeutil.DateLayout))
		}
	}
	return nil
}

// logSkip is the shared batch policy: skip the failing item, note it, and
// keep going.
func logSkip(what string, id uuid.UUID, err error) {
	log.Printf("skipping %s %s: %v", what, id, err)
}
