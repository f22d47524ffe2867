package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

// exclusionViolation is raised by the reservations overlap constraints.
const exclusionViolation = "23P01"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func clockFromPg(t pgtype.Time) schedule.Clock {
	if !t.Valid {
		return schedule.Midnight
	}
	return schedule.Clock(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func clockToPg(c schedule.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

const userColumns = `id, role, email, full_name, phone, specialization, license_number,
	is_active, is_verified, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)

	err := row.Scan(
		&u.ID,
		&role,
		&u.Email,
		&u.FullName,
		&u.Phone,
		&u.Specialization,
		&u.LicenseNumber,
		&u.Active,
		&u.Verified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Role = identity.Role(role)
	return &u, nil
}

const boxColumns = `id, name, description, location, capacity, equipment, status, is_active,
	available_from, available_to, available_days, current_reservation_id, current_doctor_id,
	maintenance_notes, version, created_at, updated_at`

func scanBox(row pgx.Row) (*Box, error) {
	var (
		b        Box
		status   string
		from, to pgtype.Time
		days     []int16
	)

	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Description,
		&b.Location,
		&b.Capacity,
		&b.Equipment,
		&status,
		&b.Active,
		&from,
		&to,
		&days,
		&b.CurrentReservationID,
		&b.CurrentDoctorID,
		&b.MaintenanceNotes,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBoxNotFound
		}
		return nil, err
	}

	b.Status = BoxStatus(status)
	b.AvailableFrom = clockFromPg(from)
	b.AvailableTo = clockFromPg(to)
	b.AvailableDays = make([]time.Weekday, 0, len(days))
	for _, d := range days {
		b.AvailableDays = append(b.AvailableDays, time.Weekday(d))
	}
	return &b, nil
}

const reservationColumns = `id, patient_id, doctor_id, box_id, reservation_date, start_time, end_time,
	duration_minutes, status, appointment_type, priority, reason, notes, created_by,
	patient_name, patient_phone, patient_email, doctor_name, doctor_specialization, box_name, box_location,
	confirmation_code, confirmed_at, confirmed_by, checked_in_at, checked_out_at, actual_duration,
	cancelled_at, cancelled_by, cancellation_reason, version, created_at, updated_at`

func scanReservation(row pgx.Row) (*Reservation, error) {
	var (
		r          Reservation
		start, end pgtype.Time
		status     string
		apptType   string
		priority   string
	)

	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.DoctorID,
		&r.BoxID,
		&r.Date,
		&start,
		&end,
		&r.DurationMinutes,
		&status,
		&apptType,
		&priority,
		&r.Reason,
		&r.Notes,
		&r.CreatedBy,
		&r.PatientName,
		&r.PatientPhone,
		&r.PatientEmail,
		&r.DoctorName,
		&r.DoctorSpecialization,
		&r.BoxName,
		&r.BoxLocation,
		&r.ConfirmationCode,
		&r.ConfirmedAt,
		&r.ConfirmedBy,
		&r.CheckedInAt,
		&r.CheckedOutAt,
		&r.ActualDuration,
		&r.CancelledAt,
		&r.CancelledBy,
		&r.CancellationReason,
		&r.Version,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	r.Start = clockFromPg(start)
	r.End = clockFromPg(end)
	r.Status = Status(status)
	r.AppointmentType = AppointmentType(apptType)
	r.Priority = Priority(priority)
	return &r, nil
}

func collectReservations(rows pgx.Rows) ([]Reservation, error) {
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// where renders the filter as a WHERE clause and its arguments.
func (f ReservationFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.BoxID != nil {
		add("box_id = $%d", *f.BoxID)
	}
	if f.Date != nil {
		add("reservation_date = $%d", schedule.DateOf(*f.Date))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == exclusionViolation
}

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *PgRepository) GetBoxByID(ctx context.Context, id uuid.UUID) (*Box, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+boxColumns+` FROM boxes WHERE id = $1`, id)
	return scanBox(row)
}

func (r *PgRepository) GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	return scanReservation(row)
}

func (r *PgRepository) ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	where, args := filter.where()
	query := `SELECT ` + reservationColumns + ` FROM reservations` + where +
		` ORDER BY reservation_date, start_time`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *PgRepository) CountReservations(ctx context.Context, filter ReservationFilter) (int, error) {
	where, args := filter.where()

	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM reservations`+where, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PgRepository) CreateReservation(ctx context.Context, res *Reservation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialises writers on the box even if the distributed lock expired.
	var boxID uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM boxes WHERE id = $1 FOR UPDATE`, res.BoxID).Scan(&boxID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBoxNotFound
		}
		return fmt.Errorf("lock box row: %w", err)
	}

	var overlapping int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM reservations
		WHERE (doctor_id = $1 OR box_id = $2)
		  AND reservation_date = $3
		  AND status IN ('pending', 'confirmed', 'in_progress')
		  AND start_time < $5
		  AND end_time > $4
	`, res.DoctorID, res.BoxID, schedule.DateOf(res.Date), clockToPg(res.Start), clockToPg(res.End)).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if overlapping > 0 {
		return fmt.Errorf("%w: overlap detected at commit", ErrScheduleConflict)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO reservations (id, patient_id, doctor_id, box_id, reservation_date, start_time, end_time,
			duration_minutes, status, appointment_type, priority, reason, notes, created_by,
			patient_name, patient_phone, patient_email, doctor_name, doctor_specialization, box_name, box_location,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, 1, now(), now())
		RETURNING `+reservationColumns,
		res.ID, res.PatientID, res.DoctorID, res.BoxID, schedule.DateOf(res.Date), clockToPg(res.Start), clockToPg(res.End),
		res.DurationMinutes, string(res.Status), string(res.AppointmentType), string(res.Priority), res.Reason, res.Notes, res.CreatedBy,
		res.PatientName, res.PatientPhone, res.PatientEmail, res.DoctorName, res.DoctorSpecialization, res.BoxName, res.BoxLocation,
	)

	created, err := scanReservation(row)
	if err != nil {
		if isExclusionViolation(err) {
			return fmt.Errorf("%w: overlap rejected by database", ErrScheduleConflict)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return fmt.Errorf("%w: overlap rejected by database", ErrScheduleConflict)
		}
		return fmt.Errorf("commit tx: %w", err)
	}

	*res = *created
	return nil
}

func (r *PgRepository) ApplyTransition(ctx context.Context, res *Reservation, expectedVersion int, box *Box) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE reservations
		SET status = $3,
		    confirmation_code = $4,
		    confirmed_at = $5,
		    confirmed_by = $6,
		    checked_in_at = $7,
		    checked_out_at = $8,
		    actual_duration = $9,
		    cancelled_at = $10,
		    cancelled_by = $11,
		    cancellation_reason = $12,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+reservationColumns,
		res.ID, expectedVersion, string(res.Status), res.ConfirmationCode, res.ConfirmedAt, res.ConfirmedBy,
		res.CheckedInAt, res.CheckedOutAt, res.ActualDuration, res.CancelledAt, res.CancelledBy, res.CancellationReason,
	)
	updated, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return ErrStaleVersion
		}
		return fmt.Errorf("update reservation: %w", err)
	}

	var boxVersion int
	if box != nil {
		err := tx.QueryRow(ctx, `
			UPDATE boxes
			SET status = $3,
			    current_reservation_id = $4,
			    current_doctor_id = $5,
			    version = version + 1,
			    updated_at = now()
			WHERE id = $1
			  AND version = $2
			RETURNING version
		`, box.ID, box.Version, string(box.Status), box.CurrentReservationID, box.CurrentDoctorID).Scan(&boxVersion)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStaleVersion
			}
			return fmt.Errorf("update box: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	*res = *updated
	if box != nil {
		box.Version = boxVersion
	}
	return nil
}

// FindPastDue compares against wall-clock time, so cutoff must be expressed
// in the clinic's location.
func (r *PgRepository) FindPastDue(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = 'confirmed'
		  AND (reservation_date + end_time) < $1::timestamp
		ORDER BY reservation_date, end_time
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, reservation_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.ReservationID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
