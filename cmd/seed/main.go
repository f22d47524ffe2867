package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-box-booking/internal/config"
	"github.com/hackgods/clinic-box-booking/internal/db"
	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/logger"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

const (
	doctorCount  = 10
	patientCount = 500
	devPassword  = "password123"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type doctor struct {
	id   uuid.UUID
	name string
}

type seeded struct {
	admin    uuid.UUID
	doctors  []doctor
	patients []uuid.UUID
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

	log.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// every seeded account shares one password hash
	hash, err := bcrypt.GenerateFromPassword([]byte(devPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("hash password", zap.Error(err))
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	var out seeded

	if out.admin, err = insertUser(ctx, pool, faker, identity.RoleAdmin, "admin@clinic.local", "Clinic Admin", nil, hash); err != nil {
		log.Fatal("seed admin", zap.Error(err))
	}
	if out.doctors, err = seedDoctors(ctx, pool, faker, hash, doctorCount); err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	log.Info("doctors seeded", zap.Int("count", len(out.doctors)))

	if out.patients, err = seedPatients(ctx, pool, faker, hash, patientCount, log); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}
	if err := seedBoxes(ctx, pool); err != nil {
		log.Fatal("seed boxes", zap.Error(err))
	}
	log.Info("boxes seeded")

	if err := seedSchedules(ctx, pool, out.admin, out.doctors); err != nil {
		log.Fatal("seed schedules", zap.Error(err))
	}
	log.Info("schedules seeded")

	tokens := identity.NewJWTProvider(cfg.JWTSecret, cfg.TokenTTL)
	printToken(tokens, log, "admin", out.admin, identity.RoleAdmin)
	printToken(tokens, log, "doctor", out.doctors[0].id, identity.RoleDoctor)
	printToken(tokens, log, "patient", out.patients[0], identity.RolePatient)

	log.Info("seed complete")
}

func printToken(tokens *identity.JWTProvider, log *zap.Logger, label string, id uuid.UUID, role identity.Role) {
	token, err := tokens.Issue(id, role)
	if err != nil {
		log.Warn("issue dev token", zap.String("role", string(role)), zap.Error(err))
		return
	}
	fmt.Printf("%s %s\n  %s\n", label, id, token)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// insertUser upserts by email so a second run reuses existing accounts.
func insertUser(ctx context.Context, q querier, faker *gofakeit.Faker, role identity.Role, email, name string, specialization *string, hash []byte) (uuid.UUID, error) {
	var license *string
	if role == identity.RoleDoctor {
		l := fmt.Sprintf("LIC-%06d", faker.Number(0, 999999))
		license = &l
	}
	phone := faker.Phone()

	var id uuid.UUID
	err := q.QueryRow(ctx, `
		INSERT INTO users (id, role, email, password_hash, full_name, phone, specialization, license_number,
			is_active, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, TRUE, now(), now())
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING id
	`, uuid.New(), string(role), email, string(hash), name, phone, specialization, license).Scan(&id)
	return id, err
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, hash []byte, count int) ([]doctor, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]doctor, 0, count)
	for i := 0; i < count; i++ {
		specialty := specialties[i%len(specialties)]
		name := "Dr. " + faker.Name()
		id, err := insertUser(ctx, tx, faker, identity.RoleDoctor, fmt.Sprintf("doctor%02d@clinic.local", i+1), name, &specialty, hash)
		if err != nil {
			return nil, err
		}
		out = append(out, doctor{id: id, name: name})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, hash []byte, count int, log *zap.Logger) ([]uuid.UUID, error) {
	const batchSize = 250

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id, err := insertUser(ctx, tx, faker, identity.RolePatient, fmt.Sprintf("patient%04d@example.com", i+1), faker.Name(), nil, hash)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return ids, nil
}

type boxSeed struct {
	name      string
	location  string
	equipment []string
	from, to  string
	days      []int16
}

var boxes = []boxSeed{
	{"Box A", "Ground floor, east wing", []string{"examination table", "ecg"}, "08:00", "18:00", []int16{1, 2, 3, 4, 5}},
	{"Box B", "Ground floor, west wing", []string{"examination table"}, "08:00", "20:00", []int16{1, 2, 3, 4, 5, 6}},
	{"Box C", "First floor", []string{"ultrasound", "examination table"}, "09:00", "17:00", []int16{1, 3, 5}},
}

func seedBoxes(ctx context.Context, pool *pgxpool.Pool) error {
	for _, b := range boxes {
		_, err := pool.Exec(ctx, `
			INSERT INTO boxes (id, name, location, capacity, equipment, status, is_active,
				available_from, available_to, available_days, version, created_at, updated_at)
			VALUES ($1, $2, $3, 1, $4, 'available', TRUE, ($5::text)::time, ($6::text)::time, $7, 1, now(), now())
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), b.name, b.location, b.equipment, b.from, b.to, b.days)
		if err != nil {
			return fmt.Errorf("insert box %s: %w", b.name, err)
		}
	}
	return nil
}

// seedSchedules gives every doctor a weekday morning template; even-numbered
// doctors get an afternoon block too.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, admin uuid.UUID, doctors []doctor) error {
	repo := schedule.NewPgRepository(pool)
	from := schedule.DateOf(time.Now()).AddDate(0, 0, -7)

	morning, err := schedule.NewTimeSlot(schedule.NewClock(8, 0), schedule.NewClock(12, 0), 30, 5)
	if err != nil {
		return err
	}
	afternoon, err := schedule.NewTimeSlot(schedule.NewClock(14, 0), schedule.NewClock(17, 0), 20, 0)
	if err != nil {
		return err
	}

	for i, d := range doctors {
		existing, err := repo.ListByDoctor(ctx, d.id)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}

		slots := []schedule.TimeSlot{morning}
		if i%2 == 0 {
			slots = append(slots, afternoon)
		}
		for day := time.Monday; day <= time.Friday; day++ {
			s := schedule.Schedule{
				DoctorID:      d.id,
				DoctorName:    d.name,
				Rule:          schedule.Regular{Weekday: day},
				EffectiveFrom: from,
				Slots:         slots,
				Available:     true,
				CreatedBy:     admin,
			}
			if err := s.Validate(); err != nil {
				return err
			}
			if err := repo.Create(ctx, &s); err != nil {
				return err
			}
		}
	}
	return nil
}
