package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/hub"
	redisclient "github.com/carebridge/ndis-roster/internal/redis"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// DraftRequest collects everything draft generation needs from the caller.
// Zero setting fields fall back to the service's configured policy.
type DraftRequest struct {
	Assignments  []Assignment
	Preferences  map[uuid.UUID]Preferences
	HorizonStart string // civil date; required
	HorizonWeeks int
}

// GenerateDraft builds a multi-week draft schedule. Participant records are
// fetched for location defaulting; a participant that cannot be loaded is
// skipped with a log line rather than aborting the whole draft.
func (s *Service) GenerateDraft(ctx context.Context, req DraftRequest) (*Draft, error) {
	if len(req.Assignments) == 0 {
		return nil, errors.New("at least one assignment is required")
	}
	horizon, err := timeutil.ParseDate(req.HorizonStart)
	if err != nil {
		return nil, fmt.Errorf("horizon_start: %w", err)
	}

	participants := make(map[uuid.UUID]Participant, len(req.Assignments))
	for _, a := range req.Assignments {
		if _, ok := participants[a.ParticipantID]; ok {
			continue
		}
		p, err := s.repo.GetParticipant(ctx, a.ParticipantID)
		if err != nil {
			logSkip("participant", a.ParticipantID, err)
			continue
		}
		participants[a.ParticipantID] = *p
	}

	weeks := req.HorizonWeeks
	if weeks <= 0 {
		weeks = s.policy.HorizonWeeks
	}

	draft := Generate(req.Assignments, req.Preferences, participants, GeneratorSettings{
		HorizonStart:       horizon,
		HorizonWeeks:       weeks,
		SessionLength:      s.policy.SessionLength,
		SessionGap:         s.policy.SessionGap,
		MinBreak:           s.policy.MinBreak,
		AutoAssignLocation: s.policy.AutoAssignLocation,
	})
	return &draft, nil
}

// ConfirmDraft persists a reviewed draft. Sessions are grouped per worker and
// written under that worker's lock so two clients cannot interleave
// overlapping confirmations. Conflicts are re-detected against live data and
// returned alongside the created appointments; they do not block.
func (s *Service) ConfirmDraft(ctx context.Context, sessions []Appointment) ([]Appointment, []Conflict, error) {
	if len(sessions) == 0 {
		return nil, nil, errors.New("draft has no sessions")
	}

	byWorker := make(map[uuid.UUID][]Appointment)
	for _, session := range sessions {
		byWorker[session.WorkerID] = append(byWorker[session.WorkerID], session)
	}

	var (
		created   []Appointment
		conflicts []Conflict
	)
	for workerID, group := range byWorker {
		err := s.locker.WithWorkerLock(ctx, workerID, func(lockCtx context.Context) error {
			for _, session := range group {
				session.ID = uuid.Nil // persisted copies get fresh ids
				stored, cs, err := s.createLocked(lockCtx, session)
				if err != nil {
					return err
				}
				created = append(created, *stored)
				conflicts = append(conflicts, cs...)
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, redisclient.ErrLockNotAcquired) {
				return created, conflicts, ErrWorkerBusy
			}
			return created, conflicts, err
		}
	}

	return created, conflicts, nil
}

// createLocked is CreateAppointment minus the lock, for callers already
// inside a worker lock section.
func (s *Service) createLocked(ctx context.Context, a Appointment) (*Appointment, []Conflict, error) {
	if err := s.validateAppointment(&a); err != nil {
		return nil, nil, err
	}
	conflicts, err := s.conflictsFor(ctx, a.Booking())
	if err != nil {
		return nil, nil, err
	}
	stored, err := s.repo.CreateAppointment(ctx, a)
	if err != nil {
		return nil, nil, fmt.Errorf("create appointment: %w", err)
	}
	s.bus.Broadcast(hub.TopicScheduling, EventAppointmentCreated, stored)
	return stored, conflicts, nil
}
