package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-box-booking/internal/identity"
)

var ErrForbidden = errors.New("actor may not manage this schedule")

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// Create stores a new schedule unless it clashes with an existing one.
//
// Dated schedules that land on a regular schedule's weekday are accepted as
// overrides and returned alongside the created schedule; every other clash
// fails with ErrScheduleConflict.
func (s *Service) Create(ctx context.Context, sched Schedule, actor identity.Actor) (*Schedule, []Conflict, error) {
	if err := authorize(sched.DoctorID, actor); err != nil {
		return nil, nil, err
	}
	sched.CreatedBy = actor.UserID
	if err := sched.Validate(); err != nil {
		return nil, nil, err
	}

	conflicts, err := s.CheckConflicts(ctx, sched)
	if err != nil {
		return nil, nil, err
	}
	if blocking := Blocking(conflicts); len(blocking) > 0 {
		return nil, conflicts, fmt.Errorf("%w: %d clashing schedule(s), first %s",
			ErrScheduleConflict, len(blocking), blocking[0].Existing.ID)
	}

	if err := s.repo.Create(ctx, &sched); err != nil {
		return nil, nil, fmt.Errorf("create schedule: %w", err)
	}

	if len(conflicts) > 0 {
		s.logger.Info("schedule overrides regular template",
			zap.String("schedule_id", sched.ID.String()),
			zap.String("doctor_id", sched.DoctorID.String()),
			zap.Int("overridden", len(conflicts)),
		)
	}
	return &sched, conflicts, nil
}

// CheckConflicts scans the doctor's stored schedules for clashes with candidate.
func (s *Service) CheckConflicts(ctx context.Context, candidate Schedule) ([]Conflict, error) {
	existing, err := s.repo.ListByDoctor(ctx, candidate.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("list doctor schedules: %w", err)
	}
	return FindConflicts(candidate, existing), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	sched, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return sched, nil
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Schedule, error) {
	list, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list doctor schedules: %w", err)
	}
	return list, nil
}

// Resolve returns the doctor's candidate start times on date.
func (s *Service) Resolve(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Clock, error) {
	list, err := s.repo.ListInEffect(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list schedules in effect: %w", err)
	}
	return Resolve(list, date), nil
}

// Deactivate clears the availability flag. Schedules are never deleted.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID, actor identity.Actor) (*Schedule, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if err := authorize(existing.DoctorID, actor); err != nil {
		return nil, err
	}
	updated, err := s.repo.SetAvailability(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("deactivate schedule: %w", err)
	}
	return updated, nil
}

func authorize(doctorID uuid.UUID, actor identity.Actor) error {
	switch {
	case actor.Role == identity.RoleAdmin:
		return nil
	case actor.Role == identity.RoleDoctor && actor.UserID == doctorID:
		return nil
	}
	return ErrForbidden
}
