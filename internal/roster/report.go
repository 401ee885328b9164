package roster

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// WorkerWeek is one row of the weekly utilisation report.
type WorkerWeek struct {
	WorkerID     string  `json:"worker_id"`
	WorkerName   string  `json:"worker_name"`
	Appointments int     `json:"appointments"`
	Entries      int     `json:"roster_entries"`
	TotalHours   float64 `json:"total_hours"`
	TotalPretty  string  `json:"total_pretty"`
}

// WeeklyReport aggregates booked hours per worker for the seven days starting
// at weekStart. A worker whose bookings cannot be fetched is skipped and
// logged; the rest of the batch still completes.
func (s *Service) WeeklyReport(ctx context.Context, weekStart time.Time) ([]WorkerWeek, error) {
	workers, err := s.repo.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}

	from := timeutil.DateOf(weekStart)
	to := from.AddDate(0, 0, 6)

	rows := make([]WorkerWeek, 0, len(workers))
	for _, w := range workers {
		workerID := w.ID
		appts, err := s.repo.ListAppointments(ctx, AppointmentFilter{WorkerID: &workerID, From: &from, To: &to, Limit: 200})
		if err != nil {
			logSkip("worker report", w.ID, err)
			continue
		}
		entries, err := s.repo.ListEntries(ctx, EntryFilter{WorkerID: &workerID, From: &from, To: &to, Limit: 200})
		if err != nil {
			logSkip("worker report", w.ID, err)
			continue
		}

		row := WorkerWeek{WorkerID: w.ID.String(), WorkerName: w.Name}
		for _, a := range appts {
			if a.Status == ApptCancelled || a.Status == ApptNoShow {
				continue
			}
			row.Appointments++
			row.TotalHours += timeutil.Hours(a.Start, a.End)
		}
		for _, e := range entries {
			if e.Status == EntryCancelled {
				continue
			}
			row.Entries++
			row.TotalHours += timeutil.Hours(e.Start, e.End)
		}
		row.TotalPretty = timeutil.FormatHours(row.TotalHours)
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].WorkerName < rows[j].WorkerName })
	return rows, nil
}
