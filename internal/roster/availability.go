package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// CheckAvailability reports whether a worker is free for the candidate
// window: the worker must be active and none of their existing bookings may
// overlap it (half-open test, so back-to-back bookings stay available).
func (s *Service) CheckAvailability(ctx context.Context, workerID uuid.UUID, date time.Time, start, end timeutil.Clock) (bool, error) {
	if end <= start {
		return false, ErrInvalidTimeRange
	}

	worker, err := s.repo.GetWorker(ctx, workerID)
	if err != nil {
		return false, fmt.Errorf("load worker: %w", err)
	}
	if worker.Status != WorkerActive {
		return false, nil
	}

	day := timeutil.DateOf(date)
	bookings, err := s.workerBookings(ctx, workerID, day, day)
	if err != nil {
		return false, err
	}

	candidate := Booking{WorkerID: workerID, Date: day, Start: start, End: end}
	for _, b := range bookings {
		if Overlaps(candidate, b) {
			return false, nil
		}
	}
	return true, nil
}
