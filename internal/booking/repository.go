package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

var (
	ErrScheduleConflict  = errors.New("requested slot is not bookable")
	ErrBoxUnavailable    = errors.New("box is unavailable")
	ErrInvalidDuration   = errors.New("invalid reservation duration")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	ErrBusy              = errors.New("booking window is busy, please retry")
	ErrForbidden         = errors.New("actor may not perform this operation")
	ErrInvalidRequest    = errors.New("invalid reservation request")
)

var (
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrBoxNotFound         = fmt.Errorf("box %w", ErrNotFound)
	ErrReservationNotFound = fmt.Errorf("reservation %w", ErrNotFound)
	// ErrStaleVersion is returned by optimistic updates whose expected version no longer matches.
	ErrStaleVersion = fmt.Errorf("stale version: %w", ErrBusy)
)

// ReservationFilter narrows ListReservations and CountReservations. Nil fields match everything.
type ReservationFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	BoxID     *uuid.UUID
	Date      *time.Time
	Statuses  []Status
	Limit     int
	Offset    int
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetBoxByID(ctx context.Context, id uuid.UUID) (*Box, error)
	GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	CountReservations(ctx context.Context, filter ReservationFilter) (int, error)

	// CreateReservation inserts r. An active reservation overlapping r for the same
	// doctor or box, detected at commit, fails with ErrScheduleConflict.
	CreateReservation(ctx context.Context, r *Reservation) error

	// ApplyTransition stores r if its stored version is still expectedVersion, and
	// box (when non-nil) if the stored box version is still box.Version. Versions are
	// bumped on success; a mismatch fails with ErrStaleVersion.
	ApplyTransition(ctx context.Context, r *Reservation, expectedVersion int, box *Box) error

	// FindPastDue returns confirmed reservations whose end is before cutoff.
	FindPastDue(ctx context.Context, cutoff time.Time) ([]Reservation, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// ScheduleReader supplies the schedules that may apply to a doctor on a date.
type ScheduleReader interface {
	ListInEffect(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.Schedule, error)
}
