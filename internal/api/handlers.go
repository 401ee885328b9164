package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/export"
	"github.com/carebridge/ndis-roster/internal/recurrence"
	"github.com/carebridge/ndis-roster/internal/roster"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

var validate = validator.New()

// decodeValid decodes a JSON body and runs structural validation. Failures
// here never reach the store gateway.
func decodeValid[T any](r *http.Request) (T, error) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("could not parse JSON: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return req, err
	}
	return req, nil
}

func createAppointmentHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeValid[CreateAppointmentRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		appt, err := appointmentFromRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		created, conflicts, err := svc.CreateAppointment(r.Context(), appt)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, AppointmentWithConflicts{
			Appointment: apptResponse(*created),
			Conflicts:   ensureConflicts(conflicts),
		})
	}
}

func listAppointmentsHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := appointmentFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		appts, err := svc.ListAppointments(r.Context(), filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, apptResponses(appts))
	}
}

func getAppointmentHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, apptResponse(*appt))
	}
}

func updateAppointmentHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		req, err := decodeValid[CreateAppointmentRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		appt, err := appointmentFromRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		appt.ID = id

		updated, conflicts, err := svc.UpdateAppointment(r.Context(), appt)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AppointmentWithConflicts{
			Appointment: apptResponse(*updated),
			Conflicts:   ensureConflicts(conflicts),
		})
	}
}

func patchAppointmentStatusHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		req, err := decodeValid[PatchStatusRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		status := roster.ParseAppointmentStatus(req.Status)
		if status == roster.ApptUnknown {
			writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("unrecognized status %q", req.Status))
			return
		}

		updated, err := svc.PatchAppointmentStatus(r.Context(), id, status)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, apptResponse(*updated))
	}
}

func deleteAppointmentHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		if err := svc.DeleteAppointment(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func exportAppointmentsHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := appointmentFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		appts, err := svc.ListAppointments(r.Context(), filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		switch r.URL.Query().Get("format") {
		case "", "csv":
			data, err := export.AppointmentsCSV(appts)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "export_failed", err.Error())
				return
			}
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="appointments.csv"`)
			_, _ = w.Write(data)
		case "ics":
			data, err := export.AppointmentsICS(appts)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "export_failed", err.Error())
				return
			}
			w.Header().Set("Content-Type", "text/calendar")
			w.Header().Set("Content-Disposition", `attachment; filename="appointments.ics"`)
			_, _ = w.Write(data)
		default:
			writeError(w, http.StatusBadRequest, "invalid_query", "format must be csv or ics")
		}
	}
}

func createEntryHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeValid[CreateEntryRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		entry, err := entryFromRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		created, conflicts, err := svc.CreateEntry(r.Context(), entry)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, EntryWithConflicts{
			Entry:     entryResponse(*created),
			Conflicts: ensureConflicts(conflicts),
		})
	}
}

func listEntriesHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := entryFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		entries, err := svc.ListEntries(r.Context(), filter)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]EntryResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, entryResponse(e))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getEntryHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		entry, err := svc.GetEntry(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entryResponse(*entry))
	}
}

func updateEntryHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		req, err := decodeValid[CreateEntryRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		entry, err := entryFromRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		entry.ID = id

		updated, conflicts, err := svc.UpdateEntry(r.Context(), entry)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, EntryWithConflicts{
			Entry:     entryResponse(*updated),
			Conflicts: ensureConflicts(conflicts),
		})
	}
}

func deleteEntryHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		if err := svc.DeleteEntry(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func availabilityHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		date, err := timeutil.ParseDate(q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "date must be YYYY-MM-DD")
			return
		}
		start, err := timeutil.ParseClock(q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "start must be HH:MM")
			return
		}
		end, err := timeutil.ParseClock(q.Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "end must be HH:MM")
			return
		}

		available, err := svc.CheckAvailability(r.Context(), id, date, start, end)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AvailabilityResponse{
			WorkerID:  id,
			Date:      date.Format(timeutil.DateLayout),
			Start:     start.String(),
			End:       end.String(),
			Available: available,
		})
	}
}

func generateScheduleHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeValid[GenerateScheduleRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		draftReq, err := draftRequestFromAPI(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		draft, err := svc.GenerateDraft(r.Context(), draftReq)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, DraftResponse{
			Sessions:  apptResponses(draft.Sessions),
			Conflicts: ensureConflicts(draft.Conflicts),
		})
	}
}

func confirmScheduleHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeValid[ConfirmScheduleRequest](r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		sessions := make([]roster.Appointment, 0, len(req.Sessions))
		for i, s := range req.Sessions {
			appt, err := appointmentFromRequest(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("session %d: %v", i, err))
				return
			}
			sessions = append(sessions, appt)
		}

		created, conflicts, err := svc.ConfirmDraft(r.Context(), sessions)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ConfirmResponse{
			Created:   apptResponses(created),
			Conflicts: ensureConflicts(conflicts),
		})
	}
}

func listParticipantsHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participants, err := svc.ListParticipants(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, participants)
	}
}

func listWorkersHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workers, err := svc.ListWorkers(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, workers)
	}
}

func weeklyReportHandler(svc *roster.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		weekStart, err := timeutil.ParseDate(r.URL.Query().Get("week_start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "week_start must be YYYY-MM-DD")
			return
		}
		rows, err := svc.WeeklyReport(r.Context(), weekStart)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// Shared helpers

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// ensureConflicts keeps the conflicts field an empty array instead of null
// so clients can iterate it unconditionally.
func ensureConflicts(cs []roster.Conflict) []roster.Conflict {
	if cs == nil {
		return []roster.Conflict{}
	}
	return cs
}

func appointmentFilterFromQuery(r *http.Request) (roster.AppointmentFilter, error) {
	q := r.URL.Query()
	var f roster.AppointmentFilter

	if v := q.Get("worker_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("worker_id: %w", err)
		}
		f.WorkerID = &id
	}
	if v := q.Get("participant_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("participant_id: %w", err)
		}
		f.ParticipantID = &id
	}
	if v := q.Get("from"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			return f, fmt.Errorf("from: %w", err)
		}
		f.From = &d
	}
	if v := q.Get("to"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			return f, fmt.Errorf("to: %w", err)
		}
		f.To = &d
	}
	if v := q.Get("status"); v != "" {
		status := roster.ParseAppointmentStatus(v)
		if status == roster.ApptUnknown {
			return f, fmt.Errorf("unrecognized status %q", v)
		}
		f.Status = &status
	}
	f.Limit = intQuery(q.Get("limit"))
	f.Offset = intQuery(q.Get("offset"))
	return f, nil
}

func entryFilterFromQuery(r *http.Request) (roster.EntryFilter, error) {
	q := r.URL.Query()
	var f roster.EntryFilter

	if v := q.Get("worker_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("worker_id: %w", err)
		}
		f.WorkerID = &id
	}
	if v := q.Get("from"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			return f, fmt.Errorf("from: %w", err)
		}
		f.From = &d
	}
	if v := q.Get("to"); v != "" {
		d, err := timeutil.ParseDate(v)
		if err != nil {
			return f, fmt.Errorf("to: %w", err)
		}
		f.To = &d
	}
	if v := q.Get("status"); v != "" {
		status := roster.ParseEntryStatus(v)
		if status == roster.EntryUnknown {
			return f, fmt.Errorf("unrecognized status %q", v)
		}
		f.Status = &status
	}
	f.Limit = intQuery(q.Get("limit"))
	f.Offset = intQuery(q.Get("offset"))
	return f, nil
}

func intQuery(v string) int {
	if v == "" {
		return 0
	}
	var n int
	_, _ = fmt.Sscanf(v, "%d", &n)
	return n
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, roster.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, roster.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "roster_entry_not_found", err.Error())
	case errors.Is(err, roster.ErrWorkerNotFound):
		writeError(w, http.StatusNotFound, "worker_not_found", err.Error())
	case errors.Is(err, roster.ErrParticipantNotFound):
		writeError(w, http.StatusNotFound, "participant_not_found", err.Error())
	case errors.Is(err, roster.ErrInvalidTimeRange),
		errors.Is(err, roster.ErrMissingWorker),
		errors.Is(err, roster.ErrOccurrenceDrift),
		errors.Is(err, recurrence.ErrUnknownPattern),
		errors.Is(err, recurrence.ErrBadInterval),
		errors.Is(err, recurrence.ErrBadRange),
		errors.Is(err, timeutil.ErrBadClock):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, roster.ErrWorkerBusy):
		writeError(w, http.StatusConflict, "worker_busy", "another write for this worker is in flight, please retry shortly")
	case errors.Is(err, roster.ErrStoreUnavailable):
		writeError(w, http.StatusBadGateway, "persistence_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
