package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-box-booking/internal/config"
	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-box-booking/internal/redis"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

const (
	EventReservationCreated = "RESERVATION_CREATED"
	EventReservationUpdated = "RESERVATION_STATUS_CHANGED"
)

const confirmationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type Service struct {
	repo      Repository
	schedules ScheduleReader
	locker    redisclient.Locker
	cfg       config.Config
	policy    Policy
	logger    *zap.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
	newCode   func() (string, error)
}

func NewService(repo Repository, schedules ScheduleReader, locker redisclient.Locker, cfg config.Config, logger *zap.Logger, rec *metrics.Recorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      repo,
		schedules: schedules,
		locker:    locker,
		cfg:       cfg,
		policy:    Policy{StrictGranularity: cfg.StrictGranularity},
		logger:    logger,
		metrics:   rec,
		now:       func() time.Time { return time.Now().In(loc) },
		newCode: func() (string, error) {
			return gonanoid.Generate(confirmationAlphabet, 8)
		},
	}
}

// lockKeys are the check-then-commit units: one per doctor and day, one per box and day.
func lockKeys(doctorID, boxID uuid.UUID, date time.Time) []string {
	day := date.Format(time.DateOnly)
	return []string{
		fmt.Sprintf("lock:doctor:%s:%s", doctorID, day),
		fmt.Sprintf("lock:box:%s:%s", boxID, day),
	}
}

func (s *Service) loadUser(ctx context.Context, id uuid.UUID, role identity.Role) (*User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", role, id, ErrUserNotFound)
		}
		return nil, fmt.Errorf("load %s: %w", role, err)
	}
	if u.Role != role || !u.Active {
		return nil, fmt.Errorf("%s %s: %w", role, id, ErrUserNotFound)
	}
	return u, nil
}

func (s *Service) loadBox(ctx context.Context, id uuid.UUID) (*Box, error) {
	b, err := s.repo.GetBoxByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load box: %w", err)
	}
	return b, nil
}

func (s *Service) activeReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	filter.Statuses = ActiveStatuses
	list, err := s.repo.ListReservations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return list, nil
}

func (s *Service) loadDay(ctx context.Context, doctorID uuid.UUID, box Box, date time.Time) (Day, error) {
	date = schedule.DateOf(date)

	schedules, err := s.schedules.ListInEffect(ctx, doctorID, date)
	if err != nil {
		return Day{}, fmt.Errorf("list schedules: %w", err)
	}
	doctorRes, err := s.activeReservations(ctx, ReservationFilter{DoctorID: &doctorID, Date: &date})
	if err != nil {
		return Day{}, err
	}
	boxRes, err := s.activeReservations(ctx, ReservationFilter{BoxID: &box.ID, Date: &date})
	if err != nil {
		return Day{}, err
	}

	return Day{
		Date:               date,
		Schedules:          schedules,
		Box:                box,
		DoctorReservations: doctorRes,
		BoxReservations:    boxRes,
	}, nil
}

// ResolveSchedule returns the doctor's candidate start times on date, before
// any reservation or box is taken into account.
func (s *Service) ResolveSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.Clock, error) {
	if _, err := s.loadUser(ctx, doctorID, identity.RoleDoctor); err != nil {
		return nil, err
	}
	schedules, err := s.schedules.ListInEffect(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedule.Resolve(schedules, date), nil
}

// BookableSlots returns the start times open for the doctor in the box on date.
// It takes no lock; a slot shown here is re-validated when booked.
func (s *Service) BookableSlots(ctx context.Context, doctorID, boxID uuid.UUID, date time.Time) ([]schedule.Clock, error) {
	if _, err := s.loadUser(ctx, doctorID, identity.RoleDoctor); err != nil {
		return nil, err
	}
	box, err := s.loadBox(ctx, boxID)
	if err != nil {
		return nil, err
	}
	day, err := s.loadDay(ctx, doctorID, *box, date)
	if err != nil {
		return nil, err
	}
	return BookableSlots(day), nil
}

// Availability summarises a doctor's day independent of any box.
type Availability struct {
	DoctorID       uuid.UUID
	DoctorName     string
	Date           time.Time
	AvailableSlots []schedule.Clock
	TotalSlots     int
	BookedSlots    int
	Percentage     float64
}

func (s *Service) DoctorAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Availability, error) {
	doctor, err := s.loadUser(ctx, doctorID, identity.RoleDoctor)
	if err != nil {
		return nil, err
	}
	date = schedule.DateOf(date)

	schedules, err := s.schedules.ListInEffect(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	reservations, err := s.activeReservations(ctx, ReservationFilter{DoctorID: &doctorID, Date: &date})
	if err != nil {
		return nil, err
	}
	booked, err := s.repo.CountReservations(ctx, ReservationFilter{DoctorID: &doctorID, Date: &date, Statuses: ActiveStatuses})
	if err != nil {
		return nil, fmt.Errorf("count reservations: %w", err)
	}

	cands := schedule.Candidates(schedules, date)
	free := doctorFree(cands, date, reservations)

	out := &Availability{
		DoctorID:       doctor.ID,
		DoctorName:     doctor.FullName,
		Date:           date,
		AvailableSlots: make([]schedule.Clock, 0, len(free)),
		TotalSlots:     len(cands),
		BookedSlots:    booked,
	}
	for _, c := range free {
		out.AvailableSlots = append(out.AvailableSlots, c.Start)
	}
	if out.TotalSlots > 0 {
		out.Percentage = float64(len(free)) / float64(out.TotalSlots) * 100
	}
	return out, nil
}

func authorizeCreate(req Request, actor identity.Actor) error {
	switch actor.Role {
	case identity.RoleAdmin:
		return nil
	case identity.RolePatient:
		if actor.UserID == req.PatientID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not book for patient %s", ErrForbidden, actor.Role, req.PatientID)
}

func checkRequest(req Request) error {
	if req.PatientID == uuid.Nil || req.DoctorID == uuid.Nil || req.BoxID == uuid.Nil {
		return fmt.Errorf("%w: patient, doctor and box are required", ErrInvalidRequest)
	}
	if req.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	if !req.AppointmentType.Valid() {
		return fmt.Errorf("%w: appointment type %q", ErrInvalidRequest, req.AppointmentType)
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return fmt.Errorf("%w: priority %q", ErrInvalidRequest, req.Priority)
	}
	return nil
}

// CreateReservation validates req and stores a pending reservation.
// Validation and insert run under the doctor-day and box-day locks so two
// concurrent requests cannot both pass against the same snapshot.
func (s *Service) CreateReservation(ctx context.Context, req Request, actor identity.Actor) (*Reservation, error) {
	res, err := s.createReservation(ctx, req, actor)
	s.metrics.ObserveBooking(outcome(err))
	return res, err
}

func (s *Service) createReservation(ctx context.Context, req Request, actor identity.Actor) (*Reservation, error) {
	if err := authorizeCreate(req, actor); err != nil {
		return nil, err
	}
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if err := checkDuration(req); err != nil {
		return nil, err
	}
	req.Date = schedule.DateOf(req.Date)

	patient, err := s.loadUser(ctx, req.PatientID, identity.RolePatient)
	if err != nil {
		return nil, err
	}
	doctor, err := s.loadUser(ctx, req.DoctorID, identity.RoleDoctor)
	if err != nil {
		return nil, err
	}
	parties := Parties{Patient: *patient, Doctor: *doctor, Creator: actor}

	var created *Reservation
	err = s.locker.WithLock(ctx, lockKeys(req.DoctorID, req.BoxID, req.Date), func(lockCtx context.Context) error {
		// Inside the critical section every input is re-read.
		box, err := s.loadBox(lockCtx, req.BoxID)
		if err != nil {
			return err
		}
		day, err := s.loadDay(lockCtx, req.DoctorID, *box, req.Date)
		if err != nil {
			return err
		}

		if !s.policy.StrictGranularity && Misaligned(day, req) {
			s.logger.Warn("reservation duration does not align with slot length",
				zap.String("doctor_id", req.DoctorID.String()),
				zap.String("start", req.Start.String()),
				zap.Int("duration_minutes", req.DurationMinutes),
			)
		}

		res, err := Validate(day, req, parties, s.policy, s.now())
		if err != nil {
			return err
		}
		if err := s.repo.CreateReservation(lockCtx, res); err != nil {
			if errors.Is(err, ErrScheduleConflict) {
				return err
			}
			return fmt.Errorf("create reservation: %w", err)
		}
		created = res

		s.logEvent(lockCtx, res.ID, EventReservationCreated, map[string]any{
			"patient_id": res.PatientID.String(),
			"doctor_id":  res.DoctorID.String(),
			"box_id":     res.BoxID.String(),
			"date":       res.Date.Format(time.DateOnly),
			"start_time": res.Start.String(),
			"end_time":   res.End.String(),
			"created_by": actor.UserID.String(),
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBusy
		}
		return nil, err
	}

	s.logger.Info("reservation created",
		zap.String("reservation_id", created.ID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.String("box_id", created.BoxID.String()),
		zap.String("date", created.Date.Format(time.DateOnly)),
		zap.String("start", created.Start.String()),
	)
	return created, nil
}

// TransitionReservation moves a reservation to target on behalf of actor,
// updating the box pointer in the same commit.
func (s *Service) TransitionReservation(ctx context.Context, id uuid.UUID, target Status, actor identity.Actor, reason string) (*Reservation, error) {
	res, err := s.transition(ctx, id, target, actor, reason)
	s.metrics.ObserveTransition(string(target), outcome(err))
	return res, err
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, target Status, actor identity.Actor, reason string) (*Reservation, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}

	current, err := s.repo.GetReservationByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load reservation: %w", err)
	}
	if !Permitted(*current, target, actor) {
		return nil, fmt.Errorf("%w: %s -> %s by %s", ErrInvalidTransition, current.Status, target, actor.Role)
	}

	var updated *Reservation
	err = s.locker.WithLock(ctx, lockKeys(current.DoctorID, current.BoxID, current.Date), func(lockCtx context.Context) error {
		r, err := s.repo.GetReservationByID(lockCtx, id)
		if err != nil {
			return fmt.Errorf("reload reservation: %w", err)
		}
		box, err := s.loadBox(lockCtx, r.BoxID)
		if err != nil {
			return err
		}

		opts := TransitionOptions{Reason: reason}
		if target == StatusConfirmed {
			code, err := s.newCode()
			if err != nil {
				return fmt.Errorf("generate confirmation code: %w", err)
			}
			opts.ConfirmationCode = code
		}

		change, err := Transition(*r, *box, target, actor, opts, s.now())
		if err != nil {
			return err
		}
		if err := s.repo.ApplyTransition(lockCtx, &change.Reservation, r.Version, change.Box); err != nil {
			if errors.Is(err, ErrStaleVersion) {
				return err
			}
			return fmt.Errorf("apply transition: %w", err)
		}
		updated = &change.Reservation

		s.logEvent(lockCtx, r.ID, EventReservationUpdated, map[string]any{
			"from":     string(r.Status),
			"to":       string(target),
			"actor_id": actor.UserID.String(),
			"role":     string(actor.Role),
			"box_held": change.Box != nil && change.Box.HeldBy(r.ID),
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBusy
		}
		return nil, err
	}
	return updated, nil
}

func canView(r Reservation, actor identity.Actor) bool {
	switch actor.Role {
	case identity.RoleAdmin, identity.RoleSystem:
		return true
	case identity.RoleDoctor:
		return r.DoctorID == actor.UserID
	case identity.RolePatient:
		return r.PatientID == actor.UserID
	}
	return false
}

func (s *Service) GetReservation(ctx context.Context, id uuid.UUID, actor identity.Actor) (*Reservation, error) {
	r, err := s.repo.GetReservationByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if !canView(*r, actor) {
		// hide existence from parties outside the reservation
		return nil, ErrReservationNotFound
	}
	return r, nil
}

// ListReservations scopes the filter to what actor may see.
func (s *Service) ListReservations(ctx context.Context, filter ReservationFilter, actor identity.Actor) ([]Reservation, error) {
	switch actor.Role {
	case identity.RolePatient:
		filter.PatientID = &actor.UserID
	case identity.RoleDoctor:
		filter.DoctorID = &actor.UserID
	}
	if filter.Limit <= 0 {
		filter.Limit = 20 // default
	}
	if filter.Limit > 100 {
		filter.Limit = 100 // max
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	list, err := s.repo.ListReservations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return list, nil
}

// SweepNoShows marks confirmed reservations that ended more than grace ago as no_show.
// It is meant for a periodic worker and returns how many were marked.
func (s *Service) SweepNoShows(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace)
	candidates, err := s.repo.FindPastDue(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find past due reservations: %w", err)
	}

	marked := 0
	for _, r := range candidates {
		if !r.PastDue(cutoff) {
			continue
		}
		_, err := s.TransitionReservation(ctx, r.ID, StatusNoShow, identity.System, "")
		if err != nil {
			s.logger.Warn("failed to mark no-show",
				zap.String("reservation_id", r.ID.String()),
				zap.Error(err),
			)
			continue
		}
		marked++
	}
	s.metrics.ObserveNoShows(marked)
	return marked, nil
}

func (s *Service) logEvent(ctx context.Context, reservationID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	id := reservationID
	ev := EventLog{
		EventType:     eventType,
		ReservationID: &id,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("reservation_id", reservationID.String()),
			zap.Error(err),
		)
	}
}

// outcome maps an error to a metrics label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrScheduleConflict):
		return "schedule_conflict"
	case errors.Is(err, ErrBoxUnavailable):
		return "box_unavailable"
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	}
	return "error"
}
