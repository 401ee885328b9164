package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/config"
	"github.com/carebridge/ndis-roster/internal/hub"
	"github.com/carebridge/ndis-roster/internal/roster"
)

// memRepo backs handler tests with plain maps.
type memRepo struct {
	participants map[uuid.UUID]roster.Participant
	workers      map[uuid.UUID]roster.SupportWorker
	appointments map[uuid.UUID]roster.Appointment
	entries      map[uuid.UUID]roster.Entry
}

func newMemRepo() *memRepo {
	return &memRepo{
		participants: make(map[uuid.UUID]roster.Participant),
		workers:      make(map[uuid.UUID]roster.SupportWorker),
		appointments: make(map[uuid.UUID]roster.Appointment),
		entries:      make(map[uuid.UUID]roster.Entry),
	}
}

func (r *memRepo) GetParticipant(_ context.Context, id uuid.UUID) (*roster.Participant, error) {
	if p, ok := r.participants[id]; ok {
		return &p, nil
	}
	return nil, roster.ErrParticipantNotFound
}

func (r *memRepo) ListParticipants(context.Context) ([]roster.Participant, error) {
	out := make([]roster.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out, nil
}

func (r *memRepo) GetWorker(_ context.Context, id uuid.UUID) (*roster.SupportWorker, error) {
	if w, ok := r.workers[id]; ok {
		return &w, nil
	}
	return nil, roster.ErrWorkerNotFound
}

func (r *memRepo) ListWorkers(context.Context) ([]roster.SupportWorker, error) {
	out := make([]roster.SupportWorker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	return out, nil
}

func (r *memRepo) ListAppointments(_ context.Context, f roster.AppointmentFilter) ([]roster.Appointment, error) {
	var out []roster.Appointment
	for _, a := range r.appointments {
		if f.WorkerID != nil && a.WorkerID != *f.WorkerID {
			continue
		}
		if f.From != nil && a.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && a.Date.After(*f.To) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memRepo) GetAppointment(_ context.Context, id uuid.UUID) (*roster.Appointment, error) {
	if a, ok := r.appointments[id]; ok {
		return &a, nil
	}
	return nil, roster.ErrAppointmentNotFound
}

func (r *memRepo) CreateAppointment(_ context.Context, a roster.Appointment) (*roster.Appointment, error) {
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *memRepo) UpdateAppointment(_ context.Context, a roster.Appointment) (*roster.Appointment, error) {
	if _, ok := r.appointments[a.ID]; !ok {
		return nil, roster.ErrAppointmentNotFound
	}
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *memRepo) PatchAppointmentStatus(_ context.Context, id uuid.UUID, status roster.AppointmentStatus) (*roster.Appointment, error) {
	a, ok := r.appointments[id]
	if !ok {
		return nil, roster.ErrAppointmentNotFound
	}
	a.Status = status
	r.appointments[id] = a
	return &a, nil
}

func (r *memRepo) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	if _, ok := r.appointments[id]; !ok {
		return roster.ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *memRepo) ListEntries(_ context.Context, f roster.EntryFilter) ([]roster.Entry, error) {
	var out []roster.Entry
	for _, e := range r.entries {
		if f.WorkerID != nil && e.WorkerID != *f.WorkerID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memRepo) GetEntry(_ context.Context, id uuid.UUID) (*roster.Entry, error) {
	if e, ok := r.entries[id]; ok {
		return &e, nil
	}
	return nil, roster.ErrEntryNotFound
}

func (r *memRepo) CreateEntry(_ context.Context, e roster.Entry) (*roster.Entry, error) {
	r.entries[e.ID] = e
	return &e, nil
}

func (r *memRepo) UpdateEntry(_ context.Context, e roster.Entry) (*roster.Entry, error) {
	if _, ok := r.entries[e.ID]; !ok {
		return nil, roster.ErrEntryNotFound
	}
	r.entries[e.ID] = e
	return &e, nil
}

func (r *memRepo) DeleteEntry(_ context.Context, id uuid.UUID) error {
	if _, ok := r.entries[id]; !ok {
		return roster.ErrEntryNotFound
	}
	delete(r.entries, id)
	return nil
}

func (r *memRepo) ReplaceOccurrences(_ context.Context, entryID uuid.UUID, occ []roster.Occurrence) error {
	e, ok := r.entries[entryID]
	if !ok {
		return roster.ErrEntryNotFound
	}
	e.Occurrences = occ
	r.entries[entryID] = e
	return nil
}

type passLocker struct{}

func (passLocker) WithWorkerLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestRouter(t *testing.T, repo *memRepo) http.Handler {
	t.Helper()

	svc := roster.NewService(repo, passLocker{}, hub.New("test", time.Hour), config.Policy{
		MinBreak:      30 * time.Minute,
		SessionLength: 2 * time.Hour,
		HorizonWeeks:  2,
	})
	return NewRouter(RouterConfig{
		Service: svc,
		Hub:     hub.New("test", time.Hour),
		Env:     "test",
		Version: "test",
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func appointmentBody(worker, participant uuid.UUID, date, start, end string) map[string]any {
	return map[string]any{
		"participant_id": participant.String(),
		"worker_id":      worker.String(),
		"date":           date,
		"start_time":     start,
		"end_time":       end,
		"service_type":   "Personal Care",
	}
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	router := newTestRouter(t, repo)

	worker, participant := uuid.New(), uuid.New()

	rec := doJSON(t, router, http.MethodPost, "/appointments",
		appointmentBody(worker, participant, "2025-01-06", "09:00", "11:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var created AppointmentWithConflicts
	decodeBody(t, rec, &created)
	if created.Appointment.ID == uuid.Nil {
		t.Error("response missing appointment id")
	}
	if created.Appointment.Duration != "2h" {
		t.Errorf("duration = %q, want 2h", created.Appointment.Duration)
	}
	if created.Appointment.Status != "pending" {
		t.Errorf("status defaulted to %q, want pending", created.Appointment.Status)
	}
	if created.Conflicts == nil {
		t.Error("conflicts must be an empty array, not null")
	}
	if !strings.Contains(rec.Body.String(), `"conflicts":[]`) {
		t.Errorf("wire body should carry an empty conflicts array: %s", rec.Body.String())
	}

	// Overlapping booking still lands, with the conflict reported.
	rec = doJSON(t, router, http.MethodPost, "/appointments",
		appointmentBody(worker, participant, "2025-01-06", "10:00", "12:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("overlap status = %d, body %s", rec.Code, rec.Body.String())
	}
	var overlapping AppointmentWithConflicts
	decodeBody(t, rec, &overlapping)
	if len(overlapping.Conflicts) != 1 || overlapping.Conflicts[0].Type != roster.ConflictOverlap {
		t.Errorf("conflicts = %+v, want one time_overlap", overlapping.Conflicts)
	}
	if len(repo.appointments) != 2 {
		t.Errorf("store holds %d appointments, want 2", len(repo.appointments))
	}
}

func TestCreateAppointmentEndpointRejectsBadInput(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, newMemRepo())

	tests := []struct {
		name string
		body map[string]any
		code string
	}{
		{
			name: "missing worker",
			body: map[string]any{
				"participant_id": uuid.New().String(),
				"date":           "2025-01-06",
				"start_time":     "09:00",
				"end_time":       "11:00",
				"service_type":   "Personal Care",
			},
			code: "invalid_request_body",
		},
		{
			name: "malformed clock",
			body: appointmentBody(uuid.New(), uuid.New(), "2025-01-06", "9am", "11:00"),
			code: "validation_error",
		},
		{
			name: "malformed date",
			body: appointmentBody(uuid.New(), uuid.New(), "06/01/2025", "09:00", "11:00"),
			code: "invalid_request_body",
		},
		{
			name: "inverted range",
			body: appointmentBody(uuid.New(), uuid.New(), "2025-01-06", "11:00", "09:00"),
			code: "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/appointments", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var errResp ErrorResponse
			decodeBody(t, rec, &errResp)
			if errResp.Error != tt.code {
				t.Errorf("error code = %q, want %q", errResp.Error, tt.code)
			}
		})
	}
}

func TestGetAppointmentEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, newMemRepo())

	rec := doJSON(t, router, http.MethodGet, "/appointments/"+uuid.New().String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/appointments/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestDeleteAppointmentEndpoint(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	router := newTestRouter(t, repo)

	rec := doJSON(t, router, http.MethodPost, "/appointments",
		appointmentBody(uuid.New(), uuid.New(), "2025-01-06", "09:00", "11:00"))
	var created AppointmentWithConflicts
	decodeBody(t, rec, &created)

	rec = doJSON(t, router, http.MethodDelete, "/appointments/"+created.Appointment.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/appointments/"+created.Appointment.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	router := newTestRouter(t, repo)

	worker := uuid.New()
	repo.workers[worker] = roster.SupportWorker{ID: worker, Name: "W", Status: roster.WorkerActive}

	rec := doJSON(t, router, http.MethodPost, "/appointments",
		appointmentBody(worker, uuid.New(), "2025-01-06", "09:00", "11:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed status = %d", rec.Code)
	}

	check := func(start, end string) AvailabilityResponse {
		t.Helper()
		path := fmt.Sprintf("/support-workers/%s/availability?date=2025-01-06&start=%s&end=%s", worker, start, end)
		rec := doJSON(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("availability status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp AvailabilityResponse
		decodeBody(t, rec, &resp)
		return resp
	}

	if resp := check("10:00", "12:00"); resp.Available {
		t.Error("overlapping window reported available")
	}
	if resp := check("11:00", "13:00"); !resp.Available {
		t.Error("back-to-back window reported unavailable")
	}

	rec = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/support-workers/%s/availability?start=09:00&end=10:00", worker), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing date status = %d, want 400", rec.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, newMemRepo())

	rec := doJSON(t, router, http.MethodPost, "/appointments",
		appointmentBody(uuid.New(), uuid.New(), "2025-01-06", "09:00", "11:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/appointments/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("csv content type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "id,participant_id") {
		t.Errorf("csv body = %q", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/appointments/export?format=ics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ics export status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "BEGIN:VCALENDAR") {
		t.Error("ics body missing VCALENDAR")
	}

	rec = doJSON(t, router, http.MethodGet, "/appointments/export?format=xlsx", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format status = %d, want 400", rec.Code)
	}
}

func TestScheduleGenerateAndConfirmEndpoints(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	router := newTestRouter(t, repo)

	worker, participant := uuid.New(), uuid.New()
	addr := "7 Station St"
	repo.participants[participant] = roster.Participant{ID: participant, Name: "P", Address: &addr}

	genBody := map[string]any{
		"assignments": []map[string]any{{
			"worker_id":      worker.String(),
			"participant_id": participant.String(),
			"role":           "Personal Care",
			"weekly_hours":   4,
		}},
		"horizon_start": "2025-01-06",
		"horizon_weeks": 1,
	}

	rec := doJSON(t, router, http.MethodPost, "/schedule/generate", genBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", rec.Code, rec.Body.String())
	}
	var draft DraftResponse
	decodeBody(t, rec, &draft)
	if len(draft.Sessions) != 2 {
		t.Fatalf("draft sessions = %d, want 2", len(draft.Sessions))
	}

	sessions := make([]map[string]any, 0, len(draft.Sessions))
	for _, s := range draft.Sessions {
		sessions = append(sessions, map[string]any{
			"participant_id": s.ParticipantID.String(),
			"worker_id":      s.WorkerID.String(),
			"date":           s.Date,
			"start_time":     s.Start,
			"end_time":       s.End,
			"service_type":   s.ServiceType,
			"location":       s.Location,
		})
	}
	rec = doJSON(t, router, http.MethodPost, "/schedule/confirm", map[string]any{"sessions": sessions})
	if rec.Code != http.StatusCreated {
		t.Fatalf("confirm status = %d, body %s", rec.Code, rec.Body.String())
	}
	var confirmed ConfirmResponse
	decodeBody(t, rec, &confirmed)
	if len(confirmed.Created) != 2 {
		t.Errorf("confirmed %d sessions, want 2", len(confirmed.Created))
	}
	if len(repo.appointments) != 2 {
		t.Errorf("store holds %d appointments after confirm, want 2", len(repo.appointments))
	}

	rec = doJSON(t, router, http.MethodPost, "/schedule/generate", map[string]any{"horizon_start": "2025-01-06"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty assignments status = %d, want 400", rec.Code)
	}
}

func TestRosterEntryEndpoints(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	router := newTestRouter(t, repo)

	worker := uuid.New()
	body := map[string]any{
		"worker_id":   worker.String(),
		"date":        "2025-01-06",
		"start_time":  "09:00",
		"end_time":    "12:00",
		"eligibility": "Community Access",
		"recurrences": []map[string]any{{
			"pattern":    "weekly",
			"interval":   1,
			"weekdays":   []int{1},
			"start_date": "2025-01-06",
			"end_date":   "2025-01-27",
		}},
		"instances": []map[string]any{{
			"date":       "2025-01-13",
			"start_time": "09:00",
			"end_time":   "12:00",
		}},
	}

	rec := doJSON(t, router, http.MethodPost, "/rostering", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create entry status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created EntryWithConflicts
	decodeBody(t, rec, &created)
	if created.Entry.ServiceTag != "Community Access" {
		t.Errorf("eligibility = %q", created.Entry.ServiceTag)
	}

	// Occurrence on a date the rule never generates must be rejected.
	bad := body
	bad["instances"] = []map[string]any{{
		"date":       "2025-01-14",
		"start_time": "09:00",
		"end_time":   "12:00",
	}}
	rec = doJSON(t, router, http.MethodPost, "/rostering", bad)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("drifted occurrence status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/rostering/"+created.Entry.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get entry status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, "/rostering/"+created.Entry.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete entry status = %d", rec.Code)
	}
}

func TestWeeklyReportEndpoint(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	router := newTestRouter(t, repo)

	worker := uuid.New()
	repo.workers[worker] = roster.SupportWorker{ID: worker, Name: "Alice", Status: roster.WorkerActive}

	rec := doJSON(t, router, http.MethodPost, "/appointments",
		appointmentBody(worker, uuid.New(), "2025-01-07", "09:00", "17:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/reports/weekly?week_start=2025-01-06", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rows []roster.WorkerWeek
	decodeBody(t, rec, &rows)
	if len(rows) != 1 || rows[0].TotalPretty != "8h" {
		t.Errorf("rows = %+v, want Alice with 8h", rows)
	}

	rec = doJSON(t, router, http.MethodGet, "/reports/weekly", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing week_start status = %d, want 400", rec.Code)
	}
}

func TestLivenessEndpoint(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, newMemRepo())

	rec := doJSON(t, router, http.MethodGet, "/health/live", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("liveness status = %d", rec.Code)
	}
}
