package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/carebridge/ndis-roster/internal/config"
	"github.com/carebridge/ndis-roster/internal/db"
	redisclient "github.com/carebridge/ndis-roster/internal/redis"
	"github.com/carebridge/ndis-roster/internal/roster"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// The occurrence worker keeps roster entries consistent with their
// recurrence rules: it expands each entry's rules into concrete occurrence
// instances and completes entries whose date has passed.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("occurrence-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running occurrence worker in env=%s cron=%q", cfg.Env, cfg.OccurrenceCron)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo roster.Repository
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()
		log.Println("connected to Postgres")
		repo = roster.NewPgRepository(pgPool)
	case config.BackendRest:
		repo, err = roster.NewRestRepository(cfg.PersistenceBaseURL, cfg.RetryAttempts, cfg.RetryBaseDelay)
		if err != nil {
			log.Fatalf("persistence api client error: %v", err)
		}
	}

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	// The cached wrapper is used for its write-path invalidation: api-server
	// instances share the same Redis, so occurrence updates evict their
	// cached listings.
	cached := roster.NewCachedRepository(repo, rdb, cfg.CacheTTL)

	// Run once at startup
	runOnce(rootCtx, cached)

	c := cron.New()
	if _, err := c.AddFunc(cfg.OccurrenceCron, func() { runOnce(rootCtx, cached) }); err != nil {
		log.Fatalf("invalid OCCURRENCE_CRON %q: %v", cfg.OccurrenceCron, err)
	}
	c.Start()

	<-rootCtx.Done()
	log.Println("shutdown signal received, stopping occurrence worker")
	<-c.Stop().Done()
}

func runOnce(ctx context.Context, repo roster.Repository) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	expanded, completed, err := sweep(runCtx, repo)
	if err != nil {
		log.Printf("occurrence run error: %v", err)
		return
	}
	log.Printf("occurrence run complete in %s expanded=%d completed=%d", time.Since(start), expanded, completed)
}

// sweep materializes occurrences for every entry that carries recurrence
// rules, and completes in-progress entries whose date has passed. Per-entry
// failures are logged and skipped so one bad record never stalls the run.
func sweep(ctx context.Context, repo roster.Repository) (expanded, completed int, err error) {
	entries, err := repo.ListEntries(ctx, roster.EntryFilter{Limit: 500})
	if err != nil {
		return 0, 0, err
	}

	today := timeutil.DateOf(time.Now().UTC())

	for _, e := range entries {
		if len(e.Rules) > 0 {
			occ, buildErr := materialize(e)
			if buildErr != nil {
				log.Printf("skipping entry %s: %v", e.ID, buildErr)
				continue
			}
			if !sameOccurrences(e.Occurrences, occ) {
				if err := repo.ReplaceOccurrences(ctx, e.ID, occ); err != nil {
					log.Printf("replace occurrences for entry %s: %v", e.ID, err)
					continue
				}
				expanded++
			}
		}

		if e.Status == roster.EntryInProgress && e.Date.Before(today) {
			e.Status = roster.EntryCompleted
			if _, err := repo.UpdateEntry(ctx, e); err != nil {
				log.Printf("complete entry %s: %v", e.ID, err)
				continue
			}
			completed++
		}
	}
	return expanded, completed, nil
}

// materialize expands all rules of an entry into occurrence instances,
// keeping the status of instances that already exist for a date.
func materialize(e roster.Entry) ([]roster.Occurrence, error) {
	existing := make(map[string]roster.EntryStatus, len(e.Occurrences))
	for _, o := range e.Occurrences {
		existing[o.Date.Format(timeutil.DateLayout)] = o.Status
	}

	seen := make(map[string]bool)
	var out []roster.Occurrence
	for _, rule := range e.Rules {
		dates, err := rule.Expand()
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			key := d.Format(timeutil.DateLayout)
			if seen[key] {
				continue
			}
			seen[key] = true

			status := roster.EntryChecked
			if prev, ok := existing[key]; ok {
				status = prev
			}
			out = append(out, roster.Occurrence{Date: d, Start: e.Start, End: e.End, Status: status})
		}
	}
	return out, nil
}

func sameOccurrences(a, b []roster.Occurrence) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Date.Equal(b[i].Date) || a[i].Start != b[i].Start ||
			a[i].End != b[i].End || a[i].Status != b[i].Status {
			return false
		}
	}
	return true
}
