package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains the storage operations the schedule service needs.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Schedule, error)

	// ListInEffect returns the doctor's schedules whose effective range contains date,
	// whatever their availability flag.
	ListInEffect(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Schedule, error)

	Create(ctx context.Context, s *Schedule) error
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*Schedule, error)
}
