package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/ndis-roster/internal/config"
	"github.com/carebridge/ndis-roster/internal/db"
	"github.com/carebridge/ndis-roster/internal/hub"
	"github.com/carebridge/ndis-roster/internal/timeutil"
)

// simulate drives synthetic scheduling load against a running api-server:
// bookings, availability checks and reads over HTTP, plus one websocket
// subscriber counting the change events the load produces.

type SimConfig struct {
	APIBaseURL       string
	WSURL            string
	Duration         time.Duration
	Clients          int
	BookingRatio     float64
	AvailabilityRatio float64
	ReadRatio        float64
	ParticipantLimit int
	WorkerLimit      int
	PostgresDSN      string
}

type DataPool struct {
	Participants []uuid.UUID
	Workers      []uuid.UUID
	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[minInt(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

type Metrics struct {
	Booking      OperationMetrics
	Availability OperationMetrics
	ReadByID     OperationMetrics
	ListByWorker OperationMetrics
	Events       int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s clients=%d booking=%.2f availability=%.2f read=%.2f",
		cfg.Duration, cfg.Clients, cfg.BookingRatio, cfg.AvailabilityRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d participants, %d support workers",
		len(dataPool.Participants), len(dataPool.Workers))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		WSURL:             getEnv("SIM_WS_URL", "ws://localhost:8080/ws"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Clients:           getInt("SIM_CLIENTS", 10),
		BookingRatio:      getFloat("SIM_BOOKING_RATIO", 0.4),
		AvailabilityRatio: getFloat("SIM_AVAILABILITY_RATIO", 0.3),
		ReadRatio:         getFloat("SIM_READ_RATIO", 0.3),
		ParticipantLimit:  getInt("SIM_PARTICIPANT_LIMIT", 200),
		WorkerLimit:       getInt("SIM_WORKER_LIMIT", 50),
		PostgresDSN:       baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.AvailabilityRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AvailabilityRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Clients <= 0 {
		return fmt.Errorf("SIM_CLIENTS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM participants LIMIT $1`, cfg.ParticipantLimit)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Participants = append(dataPool.Participants, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id FROM support_workers
		WHERE status = 'active'
		LIMIT $1`, cfg.WorkerLimit)
	if err != nil {
		return nil, fmt.Errorf("load support workers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Workers = append(dataPool.Workers, id)
	}

	if len(dataPool.Participants) == 0 {
		return nil, fmt.Errorf("no participants loaded (run cmd/seed first)")
	}
	if len(dataPool.Workers) == 0 {
		return nil, fmt.Errorf("no active support workers loaded (run cmd/seed first)")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d clients", s.config.Duration, s.config.Clients)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.listenEvents(ctx)
	}()

	for i := 0; i < s.config.Clients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			s.worker(ctx, clientID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

// listenEvents keeps one websocket subscription open for the duration of the
// run and counts scheduling events pushed by the server.
func (s *Simulator) listenEvents(ctx context.Context) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.config.WSURL, nil)
	if err != nil {
		log.Printf("websocket dial: %v (event counting disabled)", err)
		return
	}
	defer conn.Close()

	sub := map[string]string{"type": "subscribe", "subscription": hub.TopicScheduling}
	if err := conn.WriteJSON(sub); err != nil {
		log.Printf("websocket subscribe: %v", err)
		return
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "subscription_confirmed" && msg.Type != "pong" {
			atomic.AddInt64(&s.metrics.Events, 1)
		}
	}
}

func (s *Simulator) worker(ctx context.Context, clientID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(clientID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.AvailabilityRatio:
				s.doAvailability(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doReadByID(ctx, rng)
				} else {
					s.doListByWorker(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	participantID := s.pool.Participants[rng.Intn(len(s.pool.Participants))]
	workerID := s.pool.Workers[rng.Intn(len(s.pool.Workers))]

	date := timeutil.DateOf(time.Now().UTC()).AddDate(0, 0, rng.Intn(14)+1)
	startClock := timeutil.Clock((7 + rng.Intn(10)) * 60)
	endClock := startClock.Add(time.Duration(1+rng.Intn(2)) * time.Hour)

	start := time.Now()

	reqBody := map[string]any{
		"participant_id": participantID.String(),
		"worker_id":      workerID.String(),
		"date":           date.Format(timeutil.DateLayout),
		"start_time":     startClock.String(),
		"end_time":       endClock.String(),
		"service_type":   "Personal Care",
		"location":       "participant home",
		"location_kind":  "home",
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			var created struct {
				Appointment struct {
					ID uuid.UUID `json:"id"`
				} `json:"appointment"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if json.Unmarshal(bodyBytes, &created) == nil && created.Appointment.ID != uuid.Nil {
				s.pool.AddAppointment(created.Appointment.ID)
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	workerID := s.pool.Workers[rng.Intn(len(s.pool.Workers))]
	date := timeutil.DateOf(time.Now().UTC()).AddDate(0, 0, rng.Intn(14)+1)

	start := time.Now()

	url := fmt.Sprintf("%s/support-workers/%s/availability?date=%s&start=09:00&end=11:00",
		s.config.APIBaseURL, workerID, date.Format(timeutil.DateLayout))
	req, _ := http.NewRequestWithContext(ctx, "GET", url, nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Availability.Record(latency, success, false)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, apptID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doListByWorker(ctx context.Context, rng *rand.Rand) {
	workerID := s.pool.Workers[rng.Intn(len(s.pool.Workers))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/appointments?worker_id=%s&limit=20&offset=0", s.config.APIBaseURL, workerID), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListByWorker.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Clients: %d\n", s.config.Clients)
	fmt.Printf("Websocket events received: %d\n", atomic.LoadInt64(&s.metrics.Events))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Worker", &s.metrics.ListByWorker)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
