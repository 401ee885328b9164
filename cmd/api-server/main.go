package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/ndis-roster/internal/api"
	"github.com/carebridge/ndis-roster/internal/config"
	"github.com/carebridge/ndis-roster/internal/db"
	"github.com/carebridge/ndis-roster/internal/hub"
	redisclient "github.com/carebridge/ndis-roster/internal/redis"
	"github.com/carebridge/ndis-roster/internal/roster"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s backend=%s", cfg.Env, cfg.HTTPPort, cfg.StoreBackend)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pick the persistence backend
	var (
		repo   roster.Repository
		pgPool *pgxpool.Pool
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
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
		log.Printf("using persistence api at %s", cfg.PersistenceBaseURL)
	}

	// Connect Redis
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

	cached := roster.NewCachedRepository(repo, rdb, cfg.CacheTTL)
	locker := redisclient.NewRedisWorkerLocker(rdb, cfg.LockTTL)

	bus := hub.New("api-server", cfg.StaleConnAfter)
	go bus.Run(rootCtx, cfg.SweepInterval)

	svc := roster.NewService(cached, locker, bus, cfg.Policy)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Hub:     bus,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
