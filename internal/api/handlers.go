package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-box-booking/internal/booking"
	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

// BookingService is the part of booking.Service the handlers use.
type BookingService interface {
	ResolveSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.Clock, error)
	BookableSlots(ctx context.Context, doctorID, boxID uuid.UUID, date time.Time) ([]schedule.Clock, error)
	DoctorAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) (*booking.Availability, error)
	CreateReservation(ctx context.Context, req booking.Request, actor identity.Actor) (*booking.Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID, actor identity.Actor) (*booking.Reservation, error)
	ListReservations(ctx context.Context, filter booking.ReservationFilter, actor identity.Actor) ([]booking.Reservation, error)
	TransitionReservation(ctx context.Context, id uuid.UUID, target booking.Status, actor identity.Actor, reason string) (*booking.Reservation, error)
}

// ScheduleService is the part of schedule.Service the handlers use.
type ScheduleService interface {
	Create(ctx context.Context, sched schedule.Schedule, actor identity.Actor) (*schedule.Schedule, []schedule.Conflict, error)
	CheckConflicts(ctx context.Context, candidate schedule.Schedule) ([]schedule.Conflict, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]schedule.Schedule, error)
	Deactivate(ctx context.Context, id uuid.UUID, actor identity.Actor) (*schedule.Schedule, error)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func dateQuery(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter is required")
		return time.Time{}, false
	}
	d, err := schedule.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func actorFrom(w http.ResponseWriter, r *http.Request) (identity.Actor, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor")
	}
	return actor, ok
}

// Schedule reads

func resolveScheduleHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r)
		if !ok {
			return
		}

		slots, err := svc.ResolveSchedule(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			DoctorID: doctorID,
			Date:     date.Format(time.DateOnly),
			Slots:    clockStrings(slots),
		})
	}
}

func bookableSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r)
		if !ok {
			return
		}
		boxID, err := uuid.Parse(r.URL.Query().Get("box_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_box_id", "box_id must be a valid UUID")
			return
		}

		slots, err := svc.BookableSlots(r.Context(), doctorID, boxID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			DoctorID: doctorID,
			BoxID:    &boxID,
			Date:     date.Format(time.DateOnly),
			Slots:    clockStrings(slots),
		})
	}
}

func availabilityHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		date, ok := dateQuery(w, r)
		if !ok {
			return
		}

		av, err := svc.DoctorAvailability(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID:       av.DoctorID,
			DoctorName:     av.DoctorName,
			Date:           av.Date.Format(time.DateOnly),
			AvailableSlots: clockStrings(av.AvailableSlots),
			TotalSlots:     av.TotalSlots,
			BookedSlots:    av.BookedSlots,
			Percentage:     av.Percentage,
		})
	}
}

// Schedules

func scheduleFromRequest(req CreateScheduleRequest) (schedule.Schedule, error) {
	var (
		weekday *time.Weekday
		date    *time.Time
	)
	if req.DayOfWeek != nil {
		d, err := schedule.ParseWeekday(*req.DayOfWeek)
		if err != nil {
			return schedule.Schedule{}, err
		}
		weekday = &d
	}
	if req.SpecificDate != nil {
		d, err := schedule.ParseDate(*req.SpecificDate)
		if err != nil {
			return schedule.Schedule{}, err
		}
		date = &d
	}
	rule, err := schedule.NewRule(schedule.Kind(req.ScheduleType), weekday, date)
	if err != nil {
		return schedule.Schedule{}, err
	}

	from, err := schedule.ParseDate(req.EffectiveFrom)
	if err != nil {
		return schedule.Schedule{}, err
	}
	var to *time.Time
	if req.EffectiveTo != nil {
		d, err := schedule.ParseDate(*req.EffectiveTo)
		if err != nil {
			return schedule.Schedule{}, err
		}
		to = &d
	}

	slots := make([]schedule.TimeSlot, 0, len(req.TimeSlots))
	for _, ts := range req.TimeSlots {
		start, err := schedule.ParseClock(ts.StartTime)
		if err != nil {
			return schedule.Schedule{}, err
		}
		end, err := schedule.ParseClock(ts.EndTime)
		if err != nil {
			return schedule.Schedule{}, err
		}
		slot, err := schedule.NewTimeSlot(start, end, ts.AppointmentDuration, ts.BreakBetween)
		if err != nil {
			return schedule.Schedule{}, err
		}
		if ts.IsAvailable != nil {
			slot.Available = *ts.IsAvailable
		}
		slots = append(slots, slot)
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	return schedule.Schedule{
		DoctorID:      uuid.MustParse(req.DoctorID),
		DoctorName:    req.DoctorName,
		Rule:          rule,
		EffectiveFrom: from,
		EffectiveTo:   to,
		Slots:         slots,
		Available:     available,
		Notes:         req.Notes,
	}, nil
}

func createScheduleHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		var req CreateScheduleRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		sched, err := scheduleFromRequest(req)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_schedule", err.Error())
			return
		}

		created, overrides, err := svc.Create(r.Context(), sched, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateScheduleResponse{
			Schedule:  newScheduleResponse(*created),
			Overrides: newConflictResponses(overrides),
		})
	}
}

func checkScheduleHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		sched, err := scheduleFromRequest(req)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_schedule", err.Error())
			return
		}

		conflicts, err := svc.CheckConflicts(r.Context(), sched)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CheckScheduleResponse{
			Conflicts: newConflictResponses(conflicts),
			Blocking:  len(schedule.Blocking(conflicts)) > 0,
		})
	}
}

func listSchedulesHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		list, err := svc.ListByDoctor(r.Context(), doctorID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := make([]ScheduleResponse, 0, len(list))
		for _, s := range list {
			resp = append(resp, newScheduleResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deactivateScheduleHandler(svc ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		updated, err := svc.Deactivate(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newScheduleResponse(*updated))
	}
}

// Reservations

func createReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		var req CreateReservationRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := schedule.ParseClock(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}

		res, err := svc.CreateReservation(r.Context(), booking.Request{
			PatientID:       uuid.MustParse(req.PatientID),
			DoctorID:        uuid.MustParse(req.DoctorID),
			BoxID:           uuid.MustParse(req.BoxID),
			Date:            date,
			Start:           start,
			DurationMinutes: req.DurationMinutes,
			AppointmentType: booking.AppointmentType(req.AppointmentType),
			Priority:        booking.Priority(req.Priority),
			Reason:          req.Reason,
			Notes:           req.Notes,
		}, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, newReservationResponse(res))
	}
}

func getReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		res, err := svc.GetReservation(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newReservationResponse(res))
	}
}

func optionalUUID(q string) (*uuid.UUID, error) {
	if q == "" {
		return nil, nil
	}
	id, err := uuid.Parse(q)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func reservationFilter(r *http.Request) (booking.ReservationFilter, string, bool) {
	q := r.URL.Query()
	var (
		f   booking.ReservationFilter
		err error
	)

	if f.PatientID, err = optionalUUID(q.Get("patient_id")); err != nil {
		return f, "patient_id must be a valid UUID", false
	}
	if f.DoctorID, err = optionalUUID(q.Get("doctor_id")); err != nil {
		return f, "doctor_id must be a valid UUID", false
	}
	if f.BoxID, err = optionalUUID(q.Get("box_id")); err != nil {
		return f, "box_id must be a valid UUID", false
	}
	if raw := q.Get("date"); raw != "" {
		d, err := schedule.ParseDate(raw)
		if err != nil {
			return f, "date must be YYYY-MM-DD", false
		}
		f.Date = &d
	}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := booking.Status(strings.TrimSpace(s))
			if !st.Valid() {
				return f, "unknown status " + s, false
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil {
			return f, "limit must be a number", false
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if f.Offset, err = strconv.Atoi(raw); err != nil {
			return f, "offset must be a number", false
		}
	}
	return f, "", true
}

func listReservationsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		filter, msg, ok := reservationFilter(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_filter", msg)
			return
		}

		list, err := svc.ListReservations(r.Context(), filter, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		items := make([]ReservationResponse, 0, len(list))
		for i := range list {
			items = append(items, newReservationResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, ReservationListResponse{Items: items, Limit: filter.Limit, Offset: filter.Offset})
	}
}

func transitionReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req TransitionRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		res, err := svc.TransitionReservation(r.Context(), id, booking.Status(req.Status), actor, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newReservationResponse(res))
	}
}
