package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/ndis-roster/internal/recurrence"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// RestRepository implements Repository against the external persistence API:
// REST collections `participants`, `support-workers`, `appointments` and
// `rostering`, errors conveyed as non-2xx statuses with a `detail` field.
//
// Reads retry with exponential backoff up to a bounded attempt count; writes
// run exactly once. A failed call always surfaces as an error; it is never
// collapsed into an empty success result.
type RestRepository struct {
	base      *url.URL
	client    *http.Client
	attempts  int
	baseDelay time.Duration
}

func NewRestRepository(baseURL string, attempts int, baseDelay time.Duration) (*RestRepository, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse persistence base url: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	return &RestRepository{
		base:      u,
		client:    &http.Client{Timeout: 10 * time.Second},
		attempts:  attempts,
		baseDelay: baseDelay,
	}, nil
}

// Wire shapes. External payloads carry loose strings; enums are parsed to
// explicit Unknown variants on the way in.

type participantDTO struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Contact *string   `json:"contact,omitempty"`
	Address *string   `json:"address,omitempty"`
}

type workerDTO struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Contact *string   `json:"contact,omitempty"`
	Skills  []string  `json:"skills,omitempty"`
	Status  string    `json:"status"`
}

type ruleDTO struct {
	Pattern  string `json:"pattern"`
	Interval int    `json:"interval"`
	Weekdays []int  `json:"weekdays,omitempty"`
	Start    string `json:"start_date"`
	End      string `json:"end_date"`
}

type occurrenceDTO struct {
	Date   string `json:"date"`
	Start  string `json:"start_time"`
	End    string `json:"end_time"`
	Status string `json:"status"`
}

type taskDTO struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

type appointmentDTO struct {
	ID            uuid.UUID `json:"id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	WorkerID      uuid.UUID `json:"worker_id"`
	Date          string    `json:"date"`
	Start         string    `json:"start_time"`
	End           string    `json:"end_time"`
	ServiceType   string    `json:"service_type"`
	Location      string    `json:"location"`
	LocationKind  string    `json:"location_kind"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	Notes         *string   `json:"notes,omitempty"`
	Recurrence    *ruleDTO  `json:"recurrence,omitempty"`
	Notify        bool      `json:"notify"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type entryDTO struct {
	ID             uuid.UUID       `json:"id"`
	WorkerID       uuid.UUID       `json:"worker_id"`
	Date           string          `json:"date"`
	Start          string          `json:"start_time"`
	End            string          `json:"end_time"`
	ServiceTag     string          `json:"eligibility"`
	Status         string          `json:"status"`
	ParticipantIDs []uuid.UUID     `json:"participants,omitempty"`
	Tasks          []taskDTO       `json:"tasks,omitempty"`
	WorkerNotes    *string         `json:"worker_notes,omitempty"`
	Rules          []ruleDTO       `json:"recurrences,omitempty"`
	Occurrences    []occurrenceDTO `json:"instances,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type apiError struct {
	Detail string `json:"detail"`
}

// Interface methods

func (r *RestRepository) GetParticipant(ctx context.Context, id uuid.UUID) (*Participant, error) {
	var dto participantDTO
	if err := r.getJSON(ctx, "participants/"+id.String(), nil, ErrParticipantNotFound, &dto); err != nil {
		return nil, err
	}
	p := participantFromDTO(dto)
	return &p, nil
}

func (r *RestRepository) ListParticipants(ctx context.Context) ([]Participant, error) {
	var dtos []participantDTO
	if err := r.getJSON(ctx, "participants", nil, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]Participant, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, participantFromDTO(dto))
	}
	return out, nil
}

func (r *RestRepository) GetWorker(ctx context.Context, id uuid.UUID) (*SupportWorker, error) {
	var dto workerDTO
	if err := r.getJSON(ctx, "support-workers/"+id.String(), nil, ErrWorkerNotFound, &dto); err != nil {
		return nil, err
	}
	w := workerFromDTO(dto)
	return &w, nil
}

func (r *RestRepository) ListWorkers(ctx context.Context) ([]SupportWorker, error) {
	var dtos []workerDTO
	if err := r.getJSON(ctx, "support-workers", nil, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]SupportWorker, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, workerFromDTO(dto))
	}
	return out, nil
}

func (r *RestRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	q := url.Values{}
	if f.WorkerID != nil {
		q.Set("worker_id", f.WorkerID.String())
	}
	if f.ParticipantID != nil {
		q.Set("participant_id", f.ParticipantID.String())
	}
	if f.From != nil {
		q.Set("from", f.From.Format(timeutil.DateLayout))
	}
	if f.To != nil {
		q.Set("to", f.To.Format(timeutil.DateLayout))
	}
	if f.Status != nil {
		q.Set("status", string(*f.Status))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	var dtos []appointmentDTO
	if err := r.getJSON(ctx, "appointments", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]Appointment, 0, len(dtos))
	for _, dto := range dtos {
		a, err := appointmentFromDTO(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *RestRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var dto appointmentDTO
	if err := r.getJSON(ctx, "appointments/"+id.String(), nil, ErrAppointmentNotFound, &dto); err != nil {
		return nil, err
	}
	a, err := appointmentFromDTO(dto)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *RestRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	var dto appointmentDTO
	if err := r.writeJSON(ctx, http.MethodPost, "appointments", appointmentToDTO(a), &dto, nil); err != nil {
		return nil, err
	}
	created, err := appointmentFromDTO(dto)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *RestRepository) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	var dto appointmentDTO
	if err := r.writeJSON(ctx, http.MethodPut, "appointments/"+a.ID.String(), appointmentToDTO(a), &dto, ErrAppointmentNotFound); err != nil {
		return nil, err
	}
	updated, err := appointmentFromDTO(dto)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *RestRepository) PatchAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	body := map[string]string{"status": string(status)}
	var dto appointmentDTO
	if err := r.writeJSON(ctx, http.MethodPatch, "appointments/"+id.String(), body, &dto, ErrAppointmentNotFound); err != nil {
		return nil, err
	}
	patched, err := appointmentFromDTO(dto)
	if err != nil {
		return nil, err
	}
	return &patched, nil
}

func (r *RestRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return r.writeJSON(ctx, http.MethodDelete, "appointments/"+id.String(), nil, nil, ErrAppointmentNotFound)
}

func (r *RestRepository) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error) {
	q := url.Values{}
	if f.WorkerID != nil {
		q.Set("worker_id", f.WorkerID.String())
	}
	if f.From != nil {
		q.Set("from", f.From.Format(timeutil.DateLayout))
	}
	if f.To != nil {
		q.Set("to", f.To.Format(timeutil.DateLayout))
	}
	if f.Status != nil {
		q.Set("status", string(*f.Status))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	var dtos []entryDTO
	if err := r.getJSON(ctx, "rostering", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(dtos))
	for _, dto := range dtos {
		e, err := entryFromDTO(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *RestRepository) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	var dto entryDTO
	if err := r.getJSON(ctx, "rostering/"+id.String(), nil, ErrEntryNotFound, &dto); err != nil {
		return nil, err
	}
	e, err := entryFromDTO(dto)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *RestRepository) CreateEntry(ctx context.Context, e Entry) (*Entry, error) {
	var dto entryDTO
	if err := r.writeJSON(ctx, http.MethodPost, "rostering", entryToDTO(e), &dto, nil); err != nil {
		return nil, err
	}
	created, err := entryFromDTO(dto)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *RestRepository) UpdateEntry(ctx context.Context, e Entry) (*Entry, error) {
	var dto entryDTO
	if err := r.writeJSON(ctx, http.MethodPut, "rostering/"+e.ID.String(), entryToDTO(e), &dto, ErrEntryNotFound); err != nil {
		return nil, err
	}
	updated, err := entryFromDTO(dto)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *RestRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	return r.writeJSON(ctx, http.MethodDelete, "rostering/"+id.String(), nil, nil, ErrEntryNotFound)
}

func (r *RestRepository) ReplaceOccurrences(ctx context.Context, entryID uuid.UUID, occ []Occurrence) error {
	dtos := make([]occurrenceDTO, 0, len(occ))
	for _, o := range occ {
		dtos = append(dtos, occurrenceToDTO(o))
	}
	body := map[string]any{"instances": dtos}
	return r.writeJSON(ctx, http.MethodPatch, "rostering/"+entryID.String(), body, nil, ErrEntryNotFound)
}

// Transport plumbing

func (r *RestRepository) getJSON(ctx context.Context, path string, query url.Values, notFound error, out any) error {
	var lastErr error
	delay := r.baseDelay

	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		err := r.do(ctx, http.MethodGet, path, query, nil, out, notFound)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (r *RestRepository) writeJSON(ctx context.Context, method, path string, body, out any, notFound error) error {
	return r.do(ctx, method, path, nil, body, out, notFound)
}

func (r *RestRepository) do(ctx context.Context, method, path string, query url.Values, body, out any, notFound error) error {
	u := *r.base
	u.Path, _ = url.JoinPath(r.base.Path, path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && notFound != nil:
		return notFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrStoreUnavailable, method, path, resp.StatusCode, readDetail(resp.Body))
	case resp.StatusCode >= 400:
		return fmt.Errorf("persistence api rejected %s %s: %d: %s", method, path, resp.StatusCode, readDetail(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func readDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "no detail"
	}
	var e apiError
	if json.Unmarshal(data, &e) == nil && e.Detail != "" {
		return e.Detail
	}
	return string(data)
}

// DTO conversion

func participantFromDTO(dto participantDTO) Participant {
	return Participant{ID: dto.ID, Name: dto.Name, Contact: dto.Contact, Address: dto.Address}
}

func workerFromDTO(dto workerDTO) SupportWorker {
	return SupportWorker{
		ID:      dto.ID,
		Name:    dto.Name,
		Contact: dto.Contact,
		Skills:  dto.Skills,
		Status:  ParseWorkerStatus(dto.Status),
	}
}

func ruleFromDTO(dto ruleDTO) (recurrence.Rule, error) {
	start, err := timeutil.ParseDate(dto.Start)
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("rule start_date: %w", err)
	}
	end, err := timeutil.ParseDate(dto.End)
	if err != nil {
		return recurrence.Rule{}, fmt.Errorf("rule end_date: %w", err)
	}
	rule := recurrence.Rule{
		Pattern:  recurrence.ParsePattern(dto.Pattern),
		Interval: dto.Interval,
		Start:    start,
		End:      end,
	}
	for _, wd := range dto.Weekdays {
		rule.Weekdays = append(rule.Weekdays, time.Weekday(wd%7))
	}
	return rule, nil
}

func ruleToDTO(rule recurrence.Rule) ruleDTO {
	dto := ruleDTO{
		Pattern:  string(rule.Pattern),
		Interval: rule.Interval,
		Start:    rule.Start.Format(timeutil.DateLayout),
		End:      rule.End.Format(timeutil.DateLayout),
	}
	for _, wd := range rule.Weekdays {
		dto.Weekdays = append(dto.Weekdays, int(wd))
	}
	return dto
}

func appointmentFromDTO(dto appointmentDTO) (Appointment, error) {
	date, err := timeutil.ParseDate(dto.Date)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment %s date: %w", dto.ID, err)
	}
	start, err := timeutil.ParseClock(dto.Start)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment %s start: %w", dto.ID, err)
	}
	end, err := timeutil.ParseClock(dto.End)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment %s end: %w", dto.ID, err)
	}

	a := Appointment{
		ID:            dto.ID,
		ParticipantID: dto.ParticipantID,
		WorkerID:      dto.WorkerID,
		Date:          date,
		Start:         start,
		End:           end,
		ServiceType:   dto.ServiceType,
		Location:      dto.Location,
		LocationKind:  ParseLocationKind(dto.LocationKind),
		Status:        ParseAppointmentStatus(dto.Status),
		Priority:      ParsePriority(dto.Priority),
		Notes:         dto.Notes,
		Notify:        dto.Notify,
		CreatedAt:     dto.CreatedAt,
		UpdatedAt:     dto.UpdatedAt,
	}
	if dto.Recurrence != nil {
		rule, err := ruleFromDTO(*dto.Recurrence)
		if err != nil {
			return Appointment{}, err
		}
		a.Recurrence = &rule
	}
	return a, nil
}

func appointmentToDTO(a Appointment) appointmentDTO {
	dto := appointmentDTO{
		ID:            a.ID,
		ParticipantID: a.ParticipantID,
		WorkerID:      a.WorkerID,
		Date:          a.Date.Format(timeutil.DateLayout),
		Start:         a.Start.String(),
		End:           a.End.String(),
		ServiceType:   a.ServiceType,
		Location:      a.Location,
		LocationKind:  string(a.LocationKind),
		Status:        string(a.Status),
		Priority:      string(a.Priority),
		Notes:         a.Notes,
		Notify:        a.Notify,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.Recurrence != nil {
		rule := ruleToDTO(*a.Recurrence)
		dto.Recurrence = &rule
	}
	return dto
}

func occurrenceFromDTO(dto occurrenceDTO) (Occurrence, error) {
	date, err := timeutil.ParseDate(dto.Date)
	if err != nil {
		return Occurrence{}, fmt.Errorf("occurrence date: %w", err)
	}
	start, err := timeutil.ParseClock(dto.Start)
	if err != nil {
		return Occurrence{}, fmt.Errorf("occurrence start: %w", err)
	}
	end, err := timeutil.ParseClock(dto.End)
	if err != nil {
		return Occurrence{}, fmt.Errorf("occurrence end: %w", err)
	}
	return Occurrence{Date: date, Start: start, End: end, Status: ParseEntryStatus(dto.Status)}, nil
}

func occurrenceToDTO(o Occurrence) occurrenceDTO {
	return occurrenceDTO{
		Date:   o.Date.Format(timeutil.DateLayout),
		Start:  o.Start.String(),
		End:    o.End.String(),
		Status: string(o.Status),
	}
}

func entryFromDTO(dto entryDTO) (Entry, error) {
	date, err := timeutil.ParseDate(dto.Date)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s date: %w", dto.ID, err)
	}
	start, err := timeutil.ParseClock(dto.Start)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s start: %w", dto.ID, err)
	}
	end, err := timeutil.ParseClock(dto.End)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s end: %w", dto.ID, err)
	}

	e := Entry{
		ID:             dto.ID,
		WorkerID:       dto.WorkerID,
		Date:           date,
		Start:          start,
		End:            end,
		ServiceTag:     dto.ServiceTag,
		Status:         ParseEntryStatus(dto.Status),
		ParticipantIDs: dto.ParticipantIDs,
		WorkerNotes:    dto.WorkerNotes,
		CreatedAt:      dto.CreatedAt,
		UpdatedAt:      dto.UpdatedAt,
	}
	for _, t := range dto.Tasks {
		e.Tasks = append(e.Tasks, Task{Title: t.Title, Done: t.Done})
	}
	for _, rd := range dto.Rules {
		rule, err := ruleFromDTO(rd)
		if err != nil {
			return Entry{}, err
		}
		e.Rules = append(e.Rules, rule)
	}
	for _, od := range dto.Occurrences {
		occ, err := occurrenceFromDTO(od)
		if err != nil {
			return Entry{}, err
		}
		e.Occurrences = append(e.Occurrences, occ)
	}
	return e, nil
}

func entryToDTO(e Entry) entryDTO {
	dto := entryDTO{
		ID:             e.ID,
		WorkerID:       e.WorkerID,
		Date:           e.Date.Format(timeutil.DateLayout),
		Start:          e.Start.String(),
		End:            e.End.String(),
		ServiceTag:     e.ServiceTag,
		Status:         string(e.Status),
		ParticipantIDs: e.ParticipantIDs,
		WorkerNotes:    e.WorkerNotes,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
	for _, t := range e.Tasks {
		dto.Tasks = append(dto.Tasks, taskDTO{Title: t.Title, Done: t.Done})
	}
	for _, rule := range e.Rules {
		dto.Rules = append(dto.Rules, ruleToDTO(rule))
	}
	for _, occ := range e.Occurrences {
		dto.Occurrences = append(dto.Occurrences, occurrenceToDTO(occ))
	}
	return dto
}
