package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-box-booking/internal/config"
	"github.com/hackgods/clinic-box-booking/internal/db"
	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/logger"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

type SimConfig struct {
	APIBaseURL   string
	Rounds       int
	Contenders   int
	PatientLimit int
	Duration     int
	Date         time.Time
}

type DataPool struct {
	Doctors  []uuid.UUID
	Boxes    []uuid.UUID
	Patients []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Busy      int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeConflict
	outcomeBusy
	outcomeError
)

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeSuccess:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeBusy:
		atomic.AddInt64(&om.Busy, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

type Simulator struct {
	config     SimConfig
	pool       *DataPool
	tokens     *identity.JWTProvider
	client     *http.Client
	log        *zap.Logger
	booking    OperationMetrics
	violations int64
	skipped    int64
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	simCfg, err := loadConfig(cfg.Location)
	if err != nil {
		log.Fatal("invalid simulation config", zap.Error(err))
	}
	if err := validateConfig(simCfg); err != nil {
		log.Fatal("invalid simulation config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	pool, err := loadDataPool(ctx, pgPool, simCfg)
	if err != nil {
		log.Fatal("load data pool", zap.Error(err))
	}
	log.Info("data pool loaded",
		zap.Int("doctors", len(pool.Doctors)),
		zap.Int("boxes", len(pool.Boxes)),
		zap.Int("patients", len(pool.Patients)),
	)

	sim := &Simulator{
		config: simCfg,
		pool:   pool,
		tokens: identity.NewJWTProvider(cfg.JWTSecret, time.Hour),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
	sim.Run(context.Background())
	sim.PrintReport()

	if sim.violations > 0 {
		os.Exit(1)
	}
}

func loadConfig(loc *time.Location) (SimConfig, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SIM_API_URL", "http://localhost:8080")
	v.SetDefault("SIM_ROUNDS", 20)
	v.SetDefault("SIM_CONTENDERS", 25)
	v.SetDefault("SIM_PATIENT_LIMIT", 200)
	v.SetDefault("SIM_DURATION_MINUTES", 15)

	date := nextMonday(time.Now().In(loc))
	if raw := v.GetString("SIM_DATE"); raw != "" {
		d, err := schedule.ParseDate(raw)
		if err != nil {
			return SimConfig{}, fmt.Errorf("SIM_DATE: %w", err)
		}
		date = d
	}
	return SimConfig{
		APIBaseURL:   strings.TrimRight(v.GetString("SIM_API_URL"), "/"),
		Rounds:       v.GetInt("SIM_ROUNDS"),
		Contenders:   v.GetInt("SIM_CONTENDERS"),
		PatientLimit: v.GetInt("SIM_PATIENT_LIMIT"),
		Duration:     v.GetInt("SIM_DURATION_MINUTES"),
		Date:         date,
	}, nil
}

func validateConfig(cfg SimConfig) error {
	if cfg.Rounds <= 0 {
		return fmt.Errorf("SIM_ROUNDS must be positive")
	}
	if cfg.Contenders < 2 {
		return fmt.Errorf("SIM_CONTENDERS must be at least 2")
	}
	if cfg.PatientLimit < cfg.Contenders {
		return fmt.Errorf("SIM_PATIENT_LIMIT must be at least SIM_CONTENDERS")
	}
	return nil
}

func nextMonday(now time.Time) time.Time {
	d := schedule.DateOf(now).AddDate(0, 0, 1)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	doctors, err := loadIDs(ctx, pool, `
		SELECT DISTINCT doctor_id FROM schedules
		WHERE schedule_type = 'regular' AND is_available AND day_of_week = $1
	`, int16(cfg.Date.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	boxes, err := loadIDs(ctx, pool, `
		SELECT id FROM boxes
		WHERE is_active AND status <> 'maintenance' AND $1 = ANY(available_days)
	`, int16(cfg.Date.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("load boxes: %w", err)
	}
	patients, err := loadIDs(ctx, pool, `
		SELECT id FROM users WHERE role = 'patient' AND is_active ORDER BY random() LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(doctors) == 0 || len(boxes) == 0 || len(patients) < cfg.Contenders {
		return nil, fmt.Errorf("not enough seeded data: doctors=%d boxes=%d patients=%d", len(doctors), len(boxes), len(patients))
	}
	return &DataPool{Doctors: doctors, Boxes: boxes, Patients: patients}, nil
}

// Run fires Contenders simultaneous bookings at one free slot per round.
func (s *Simulator) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for round := 1; round <= s.config.Rounds; round++ {
		doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
		box := s.pool.Boxes[rng.Intn(len(s.pool.Boxes))]

		slot, ok, err := s.pickSlot(ctx, rng, doctor, box)
		if err != nil {
			s.log.Warn("fetch slots failed", zap.Int("round", round), zap.Error(err))
			atomic.AddInt64(&s.skipped, 1)
			continue
		}
		if !ok {
			atomic.AddInt64(&s.skipped, 1)
			continue
		}

		contenders := make([]uuid.UUID, len(s.pool.Patients))
		copy(contenders, s.pool.Patients)
		rng.Shuffle(len(contenders), func(i, j int) { contenders[i], contenders[j] = contenders[j], contenders[i] })
		contenders = contenders[:s.config.Contenders]

		var wins int64
		g, gctx := errgroup.WithContext(ctx)
		for _, patient := range contenders {
			g.Go(func() error {
				o := s.book(gctx, patient, doctor, box, slot)
				if o == outcomeSuccess {
					atomic.AddInt64(&wins, 1)
				}
				return nil
			})
		}
		_ = g.Wait()

		if wins > 1 {
			atomic.AddInt64(&s.violations, 1)
			s.log.Error("double booking detected",
				zap.Int("round", round),
				zap.String("doctor_id", doctor.String()),
				zap.String("box_id", box.String()),
				zap.String("slot", slot),
				zap.Int64("wins", wins),
			)
		}
	}
}

func (s *Simulator) authorize(req *http.Request, id uuid.UUID) error {
	token, err := s.tokens.Issue(id, identity.RolePatient)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (s *Simulator) pickSlot(ctx context.Context, rng *rand.Rand, doctor, box uuid.UUID) (string, bool, error) {
	url := fmt.Sprintf("%s/doctors/%s/slots?date=%s&box_id=%s",
		s.config.APIBaseURL, doctor, s.config.Date.Format(time.DateOnly), box)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	if err := s.authorize(req, s.pool.Patients[0]); err != nil {
		return "", false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", false, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Slots []string `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", false, err
	}
	if len(payload.Slots) == 0 {
		return "", false, nil
	}
	return payload.Slots[rng.Intn(len(payload.Slots))], true, nil
}

func (s *Simulator) book(ctx context.Context, patient, doctor, box uuid.UUID, slot string) outcome {
	body, _ := json.Marshal(map[string]any{
		"patient_id":       patient.String(),
		"doctor_id":        doctor.String(),
		"box_id":           box.String(),
		"date":             s.config.Date.Format(time.DateOnly),
		"start_time":       slot,
		"duration_minutes": s.config.Duration,
		"appointment_type": "consultation",
	})

	start := time.Now()
	o := s.post(ctx, patient, body)
	s.booking.Record(time.Since(start), o)
	return o
}

func (s *Simulator) post(ctx context.Context, patient uuid.UUID, body []byte) outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/reservations", bytes.NewReader(body))
	if err != nil {
		return outcomeError
	}
	req.Header.Set("Content-Type", "application/json")
	if err := s.authorize(req, patient); err != nil {
		return outcomeError
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return outcomeError
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return outcomeSuccess
	case http.StatusConflict:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "busy" {
			return outcomeBusy
		}
		return outcomeConflict
	}
	return outcomeError
}

func (s *Simulator) PrintReport() {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Concurrent booking simulation, date %s\n", s.config.Date.Format(time.DateOnly))
	fmt.Printf("rounds=%d contenders=%d skipped=%d\n", s.config.Rounds, s.config.Contenders, s.skipped)
	fmt.Println(strings.Repeat("-", 60))

	om := &s.booking
	avg, p50, p95, max := om.Stats()
	fmt.Printf("requests:  %d\n", om.Total)
	fmt.Printf("success:   %d\n", om.Success)
	fmt.Printf("conflict:  %d\n", om.Conflict)
	fmt.Printf("busy:      %d\n", om.Busy)
	fmt.Printf("error:     %d\n", om.Error)
	fmt.Printf("latency:   avg=%s p50=%s p95=%s max=%s\n", avg, p50, p95, max)
	fmt.Println(strings.Repeat("-", 60))
	if s.violations > 0 {
		fmt.Printf("DOUBLE BOOKINGS: %d rounds had more than one winner\n", s.violations)
	} else {
		fmt.Println("no double bookings")
	}
	fmt.Println(strings.Repeat("=", 60))
}
