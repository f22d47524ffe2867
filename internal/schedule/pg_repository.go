package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const scheduleColumns = `id, doctor_id, doctor_name, schedule_type, effective_from, effective_to,
	day_of_week, specific_date, time_slots, is_available, notes, created_by, created_at, updated_at`

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var (
		s       Schedule
		kind    Kind
		weekday *int16
		date    *time.Time
		slots   []TimeSlot
	)

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.DoctorName,
		&kind,
		&s.EffectiveFrom,
		&s.EffectiveTo,
		&weekday,
		&date,
		&slots,
		&s.Available,
		&s.Notes,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	var wd *time.Weekday
	if weekday != nil {
		d := time.Weekday(*weekday)
		wd = &d
	}
	rule, err := NewRule(kind, wd, date)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
	}
	s.Rule = rule
	s.Slots = slots
	return &s, nil
}

func collectSchedules(rows pgx.Rows) ([]Schedule, error) {
	defer rows.Close()

	var result []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE doctor_id = $1
		ORDER BY effective_from, created_at
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

func (r *PgRepository) ListInEffect(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE doctor_id = $1
		  AND effective_from <= $2
		  AND (effective_to IS NULL OR effective_to >= $2)
		ORDER BY created_at
	`, doctorID, DateOf(date))
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

func (r *PgRepository) Create(ctx context.Context, s *Schedule) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Slots == nil {
		s.Slots = []TimeSlot{}
	}

	weekday, date := Columns(s.Rule)
	var wd *int16
	if weekday != nil {
		v := int16(*weekday)
		wd = &v
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedules (id, doctor_id, doctor_name, schedule_type, effective_from, effective_to,
			day_of_week, specific_date, time_slots, is_available, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+scheduleColumns,
		s.ID, s.DoctorID, s.DoctorName, s.Kind(), DateOf(s.EffectiveFrom), s.EffectiveTo,
		wd, date, s.Slots, s.Available, s.Notes, s.CreatedBy,
	)

	created, err := scanSchedule(row)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	*s = *created
	return nil
}

func (r *PgRepository) SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE schedules
		SET is_available = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+scheduleColumns, id, available)
	return scanSchedule(row)
}
