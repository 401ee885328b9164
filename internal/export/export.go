// Package export serializes appointment records for download. No
// scheduling logic lives here.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	ics "github.com/arran4/golang-ical"

	"github.com/carebridge/ndis-roster/internal/roster"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

var csvHeader = []string{
	"id", "participant_id", "worker_id", "date", "start_time", "end_time",
	"service_type", "location", "location_kind", "status", "priority",
}

// AppointmentsCSV renders appointments as comma-joined rows with quoted
// fields where needed (encoding/csv handles the quoting).
func AppointmentsCSV(appts []roster.Appointment) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, a := range appts {
		row := []string{
			a.ID.String(),
			a.ParticipantID.String(),
			a.WorkerID.String(),
			a.Date.Format(timeutil.DateLayout),
			a.Start.String(),
			a.End.String(),
			a.ServiceType,
			a.Location,
			string(a.LocationKind),
			string(a.Status),
			string(a.Priority),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row for %s: %w", a.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AppointmentsICS renders appointments as a VCALENDAR with one VEVENT per
// appointment, DTSTART/DTEND in UTC basic format.
func AppointmentsICS(appts []roster.Appointment) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//carebridge//ndis-roster//EN")

	for _, a := range appts {
		ev := cal.AddEvent(a.ID.String())
		ev.SetStartAt(timeutil.Combine(a.Date, a.Start))
		ev.SetEndAt(timeutil.Combine(a.Date, a.End))
		ev.SetSummary(a.ServiceType)
		if a.Location != "" {
			ev.SetLocation(a.Location)
		}
		if a.Notes != nil && *a.Notes != "" {
			ev.SetDescription(*a.Notes)
		}
		ev.SetStatus(icsStatus(a.Status))
		if !a.CreatedAt.IsZero() {
			ev.SetCreatedTime(a.CreatedAt)
		}
		if !a.UpdatedAt.IsZero() {
			ev.SetModifiedAt(a.UpdatedAt)
		}
	}
	return []byte(cal.Serialize()), nil
}

func icsStatus(s roster.AppointmentStatus) ics.ObjectStatus {
	switch s {
	case roster.ApptCancelled, roster.ApptNoShow:
		return ics.ObjectStatusCancelled
	case roster.ApptConfirmed, roster.ApptInProgress, roster.ApptCompleted:
		return ics.ObjectStatusConfirmed
	default:
		return ics.ObjectStatusTentative
	}
}
