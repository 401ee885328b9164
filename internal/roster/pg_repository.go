package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/ndis-roster/internal/recurrence"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// PgRepository talks to the relational store directly. It is the default
// backend for deployments that own the database.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanParticipant(row pgx.Row) (*Participant, error) {
	var p Participant
	err := row.Scan(&p.ID, &p.Name, &p.Contact, &p.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanWorker(row pgx.Row) (*SupportWorker, error) {
	var (
		w      SupportWorker
		status string
		skills []byte
	)
	err := row.Scan(&w.ID, &w.Name, &w.Contact, &skills, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkerNotFound
		}
		return nil, err
	}
	w.Status = ParseWorkerStatus(status)
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &w.Skills); err != nil {
			return nil, fmt.Errorf("decode worker skills: %w", err)
		}
	}
	return &w, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                  Appointment
		startStr, endStr   string
		status, priority   string
		locationKind       string
		recurrenceJSON     []byte
	)
	err := row.Scan(
		&a.ID,
		&a.ParticipantID,
		&a.WorkerID,
		&a.Date,
		&startStr,
		&endStr,
		&a.ServiceType,
		&a.Location,
		&locationKind,
		&status,
		&priority,
		&a.Notes,
		&recurrenceJSON,
		&a.Notify,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.Start, err = timeutil.ParseClock(startStr); err != nil {
		return nil, fmt.Errorf("appointment %s start: %w", a.ID, err)
	}
	if a.End, err = timeutil.ParseClock(endStr); err != nil {
		return nil, fmt.Errorf("appointment %s end: %w", a.ID, err)
	}
	a.Status = ParseAppointmentStatus(status)
	a.Priority = ParsePriority(priority)
	a.LocationKind = ParseLocationKind(locationKind)
	if len(recurrenceJSON) > 0 {
		var rule recurrence.Rule
		if err := json.Unmarshal(recurrenceJSON, &rule); err != nil {
			return nil, fmt.Errorf("decode appointment recurrence: %w", err)
		}
		a.Recurrence = &rule
	}
	return &a, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e                Entry
		startStr, endStr string
		status           string
		participantsJSON []byte
		tasksJSON        []byte
		rulesJSON        []byte
		occJSON          []byte
	)
	err := row.Scan(
		&e.ID,
		&e.WorkerID,
		&e.Date,
		&startStr,
		&endStr,
		&e.ServiceTag,
		&status,
		&participantsJSON,
		&tasksJSON,
		&e.WorkerNotes,
		&rulesJSON,
		&occJSON,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	if e.Start, err = timeutil.ParseClock(startStr); err != nil {
		return nil, fmt.Errorf("entry %s start: %w", e.ID, err)
	}
	if e.End, err = timeutil.ParseClock(endStr); err != nil {
		return nil, fmt.Errorf("entry %s end: %w", e.ID, err)
	}
	e.Status = ParseEntryStatus(status)
	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{participantsJSON, &e.ParticipantIDs},
		{tasksJSON, &e.Tasks},
		{rulesJSON, &e.Rules},
		{occJSON, &e.Occurrences},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, fmt.Errorf("decode entry %s field: %w", e.ID, err)
		}
	}
	return &e, nil
}

const appointmentCols = `id, participant_id, worker_id, date, start_time, end_time,
	service_type, location, location_kind, status, priority, notes, recurrence,
	notify, created_at, updated_at`

const entryCols = `id, worker_id, date, start_time, end_time, service_tag, status,
	participant_ids, tasks, worker_notes, rules, occurrences, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetParticipant(ctx context.Context, id uuid.UUID) (*Participant, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, contact, address
		FROM participants
		WHERE id = $1`, id)
	return scanParticipant(row)
}

func (r *PgRepository) ListParticipants(ctx context.Context) ([]Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, contact, address
		FROM participants
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PgRepository) GetWorker(ctx context.Context, id uuid.UUID) (*SupportWorker, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, contact, skills, status
		FROM support_workers
		WHERE id = $1`, id)
	return scanWorker(row)
}

func (r *PgRepository) ListWorkers(ctx context.Context) ([]SupportWorker, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, contact, skills, status
		FROM support_workers
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SupportWorker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	where, args := appointmentWhere(f)
	query := fmt.Sprintf(`
		SELECT %s FROM appointments
		%s
		ORDER BY date, start_time, id
		LIMIT %d OFFSET %d`, appointmentCols, where, clampLimit(f.Limit), maxInt(f.Offset, 0))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM appointments WHERE id = $1`, appointmentCols), id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	recurrenceJSON, err := marshalNullable(a.Recurrence)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO appointments (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING %s`, appointmentCols, appointmentCols),
		a.ID, a.ParticipantID, a.WorkerID, a.Date, a.Start.String(), a.End.String(),
		a.ServiceType, a.Location, string(a.LocationKind), string(a.Status),
		string(a.Priority), a.Notes, recurrenceJSON, a.Notify, now, now)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	recurrenceJSON, err := marshalNullable(a.Recurrence)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE appointments SET
			participant_id = $2, worker_id = $3, date = $4, start_time = $5,
			end_time = $6, service_type = $7, location = $8, location_kind = $9,
			status = $10, priority = $11, notes = $12, recurrence = $13,
			notify = $14, updated_at = $15
		WHERE id = $1
		RETURNING %s`, appointmentCols),
		a.ID, a.ParticipantID, a.WorkerID, a.Date, a.Start.String(), a.End.String(),
		a.ServiceType, a.Location, string(a.LocationKind), string(a.Status),
		string(a.Priority), a.Notes, recurrenceJSON, a.Notify, time.Now().UTC())
	return scanAppointment(row)
}

func (r *PgRepository) PatchAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE appointments SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING %s`, appointmentCols),
		id, string(status), time.Now().UTC())
	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error) {
	where, args := entryWhere(f)
	query := fmt.Sprintf(`
		SELECT %s FROM roster_entries
		%s
		ORDER BY date, start_time, id
		LIMIT %d OFFSET %d`, entryCols, where, clampLimit(f.Limit), maxInt(f.Offset, 0))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *PgRepository) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM roster_entries WHERE id = $1`, entryCols), id)
	return scanEntry(row)
}

func (r *PgRepository) CreateEntry(ctx context.Context, e Entry) (*Entry, error) {
	participantsJSON, tasksJSON, rulesJSON, occJSON, err := entryJSON(e)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO roster_entries (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING %s`, entryCols, entryCols),
		e.ID, e.WorkerID, e.Date, e.Start.String(), e.End.String(), e.ServiceTag,
		string(e.Status), participantsJSON, tasksJSON, e.WorkerNotes, rulesJSON,
		occJSON, now, now)
	return scanEntry(row)
}

func (r *PgRepository) UpdateEntry(ctx context.Context, e Entry) (*Entry, error) {
	participantsJSON, tasksJSON, rulesJSON, occJSON, err := entryJSON(e)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE roster_entries SET
			worker_id = $2, date = $3, start_time = $4, end_time = $5,
			service_tag = $6, status = $7, participant_ids = $8, tasks = $9,
			worker_notes = $10, rules = $11, occurrences = $12, updated_at = $13
		WHERE id = $1
		RETURNING %s`, entryCols),
		e.ID, e.WorkerID, e.Date, e.Start.String(), e.End.String(), e.ServiceTag,
		string(e.Status), participantsJSON, tasksJSON, e.WorkerNotes, rulesJSON,
		occJSON, time.Now().UTC())
	return scanEntry(row)
}

func (r *PgRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roster_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *PgRepository) ReplaceOccurrences(ctx context.Context, entryID uuid.UUID, occ []Occurrence) error {
	occJSON, err := json.Marshal(occ)
	if err != nil {
		return fmt.Errorf("encode occurrences: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE roster_entries SET occurrences = $2, updated_at = $3
		WHERE id = $1`, entryID, occJSON, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Filter building

func appointmentWhere(f AppointmentFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.WorkerID != nil {
		add("worker_id = $%d", *f.WorkerID)
	}
	if f.ParticipantID != nil {
		add("participant_id = $%d", *f.ParticipantID)
	}
	if f.From != nil {
		add("date >= $%d", timeutil.DateOf(*f.From))
	}
	if f.To != nil {
		add("date <= $%d", timeutil.DateOf(*f.To))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func entryWhere(f EntryFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.WorkerID != nil {
		add("worker_id = $%d", *f.WorkerID)
	}
	if f.From != nil {
		add("date >= $%d", timeutil.DateOf(*f.From))
	}
	if f.To != nil {
		add("date <= $%d", timeutil.DateOf(*f.To))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func entryJSON(e Entry) (participants, tasks, rules, occ []byte, err error) {
	if participants, err = json.Marshal(e.ParticipantIDs); err != nil {
		return
	}
	if tasks, err = json.Marshal(e.Tasks); err != nil {
		return
	}
	if rules, err = json.Marshal(e.Rules); err != nil {
		return
	}
	occ, err = json.Marshal(e.Occurrences)
	return
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch rv := v.(type) {
	case *recurrence.Rule:
		if rv == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return data, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
