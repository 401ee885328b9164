package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/ndis-roster/internal/db"
	"github.com/carebridge/ndis-roster/internal/recurrence"
	"github.com/carebridge/ndis-roster/internal/roster"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

var serviceTypes = []string{
	"Personal Care",
	"Community Access",
	"Domestic Assistance",
	"Transport",
	"Social Support",
	"Skill Development",
	"Respite",
}

var workerSkills = []string{
	"personal-care",
	"manual-handling",
	"medication-support",
	"community-access",
	"behaviour-support",
	"first-aid",
	"auslan",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	workers, err := seedWorkers(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed support workers: %v", err)
	}
	participants, err := seedParticipants(context.Background(), pool, 200)
	if err != nil {
		log.Fatalf("seed participants: %v", err)
	}

	repo := roster.NewPgRepository(pool)
	if err := seedAppointments(context.Background(), repo, workers, participants, 600); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}
	if err := seedEntries(context.Background(), repo, workers, participants, 120); err != nil {
		log.Fatalf("seed roster entries: %v", err)
	}

	log.Println("seed complete")
}

func seedWorkers(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d support workers", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		skills := pickSome(workerSkills, gofakeit.Number(1, 4))
		skillsJSON, err := json.Marshal(skills)
		if err != nil {
			return nil, err
		}

		status := roster.WorkerActive
		if gofakeit.Number(0, 9) == 0 {
			status = roster.WorkerOnLeave
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO support_workers (id, name, contact, skills, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, gofakeit.Name(), gofakeit.Phone(), skillsJSON, string(status))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("support workers seeded")
	return ids, nil
}

func seedParticipants(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d participants", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		addr := gofakeit.Address()

		_, err := tx.Exec(ctx, `
			INSERT INTO participants (id, name, contact, address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, gofakeit.Name(), gofakeit.Phone(), addr.Address)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("participants seeded")
	return ids, nil
}

func seedAppointments(ctx context.Context, repo *roster.PgRepository, workers, participants []uuid.UUID, count int) error {
	log.Printf("seeding %d appointments", count)

	today := timeutil.DateOf(time.Now().UTC())

	for i := 0; i < count; i++ {
		date := today.AddDate(0, 0, gofakeit.Number(-7, 21))
		start := timeutil.Clock(gofakeit.Number(7, 17) * 60)
		end := start.Add(time.Duration(gofakeit.Number(1, 3)) * time.Hour)

		appt := roster.Appointment{
			ID:            uuid.New(),
			ParticipantID: participants[gofakeit.Number(0, len(participants)-1)],
			WorkerID:      workers[gofakeit.Number(0, len(workers)-1)],
			Date:          date,
			Start:         start,
			End:           end,
			ServiceType:   serviceTypes[gofakeit.Number(0, len(serviceTypes)-1)],
			Location:      gofakeit.Address().Address,
			LocationKind:  roster.LocationHome,
			Status:        roster.ApptConfirmed,
			Priority:      roster.PriorityMedium,
			Notify:        gofakeit.Bool(),
		}

		// A slice of appointments repeat weekly for a month.
		if gofakeit.Number(0, 4) == 0 {
			appt.Recurrence = &recurrence.Rule{
				Pattern:  recurrence.PatternWeekly,
				Interval: 1,
				Weekdays: []time.Weekday{date.Weekday()},
				Start:    date,
				End:      date.AddDate(0, 1, 0),
			}
		}

		if _, err := repo.CreateAppointment(ctx, appt); err != nil {
			return err
		}

		if (i+1)%200 == 0 {
			log.Printf("appointments seeded: %d/%d", i+1, count)
		}
	}

	log.Println("appointments seeded")
	return nil
}

func seedEntries(ctx context.Context, repo *roster.PgRepository, workers, participants []uuid.UUID, count int) error {
	log.Printf("seeding %d roster entries", count)

	today := timeutil.DateOf(time.Now().UTC())

	for i := 0; i < count; i++ {
		date := today.AddDate(0, 0, gofakeit.Number(0, 14))
		start := timeutil.Clock(gofakeit.Number(8, 15) * 60)
		end := start.Add(time.Duration(gofakeit.Number(2, 4)) * time.Hour)

		entry := roster.Entry{
			ID:             uuid.New(),
			WorkerID:       workers[gofakeit.Number(0, len(workers)-1)],
			Date:           date,
			Start:          start,
			End:            end,
			ServiceTag:     serviceTypes[gofakeit.Number(0, len(serviceTypes)-1)],
			Status:         roster.EntryConfirmed,
			ParticipantIDs: []uuid.UUID{participants[gofakeit.Number(0, len(participants)-1)]},
			Tasks: []roster.Task{
				{Title: gofakeit.Sentence(4)},
			},
		}

		if gofakeit.Number(0, 2) == 0 {
			entry.Rules = []recurrence.Rule{{
				Pattern:  recurrence.PatternWeekly,
				Interval: 1,
				Weekdays: []time.Weekday{date.Weekday()},
				Start:    date,
				End:      date.AddDate(0, 0, 28),
			}}
		}

		if _, err := repo.CreateEntry(ctx, entry); err != nil {
			return err
		}
	}

	log.Println("roster entries seeded")
	return nil
}

func pickSome(pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	idx := make(map[int]bool, n)
	out := make([]string, 0, n)
	for len(out) < n {
		i := gofakeit.Number(0, len(pool)-1)
		if idx[i] {
			continue
		}
		idx[i] = true
		out = append(out, pool[i])
	}
	return out
}
