package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

// Overlaps reports whether [s1, e1) and [s2, e2) intersect.
func Overlaps(s1, e1, s2, e2 schedule.Clock) bool {
	return s1 < e2 && s2 < e1
}

// Day is everything availability depends on for one doctor, box and date.
type Day struct {
	Date               time.Time
	Schedules          []schedule.Schedule
	Box                Box
	DoctorReservations []Reservation
	BoxReservations    []Reservation
}

func collides(list []Reservation, date time.Time, start, end schedule.Clock) *Reservation {
	for i := range list {
		r := list[i]
		if !r.Active() || !schedule.SameDate(r.Date, date) {
			continue
		}
		if Overlaps(start, end, r.Start, r.End) {
			return &list[i]
		}
	}
	return nil
}

// doctorFree filters candidates down to those not colliding with an active
// reservation of the doctor.
func doctorFree(cands []schedule.Candidate, date time.Time, reservations []Reservation) []schedule.Candidate {
	out := make([]schedule.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.End() > schedule.EndOfDay {
			continue
		}
		if collides(reservations, date, c.Start, c.End()) != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// BookableSlots returns the start times still open on d: the doctor's resolved
// candidates minus those colliding with an active reservation of the doctor or
// the box, minus those outside the box's opening hours. An inactive box or one
// in maintenance has no bookable slots.
func BookableSlots(d Day) []schedule.Clock {
	if !d.Box.Bookable() {
		return []schedule.Clock{}
	}

	free := doctorFree(schedule.Candidates(d.Schedules, d.Date), d.Date, d.DoctorReservations)
	out := make([]schedule.Clock, 0, len(free))
	for _, c := range free {
		if !d.Box.OpenFor(d.Date, c.Start, c.End()) {
			continue
		}
		if collides(d.BoxReservations, d.Date, c.Start, c.End()) != nil {
			continue
		}
		out = append(out, c.Start)
	}
	return out
}

// Request is a proposed reservation.
type Request struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	BoxID           uuid.UUID
	Date            time.Time
	Start           schedule.Clock
	DurationMinutes int
	AppointmentType AppointmentType
	Priority        Priority
	Reason          *string
	Notes           *string
}

// Parties are the user records a reservation snapshots its display fields from.
type Parties struct {
	Patient User
	Doctor  User
	Creator identity.Actor
}

// Policy tunes validation.
type Policy struct {
	// StrictGranularity rejects durations that are not a whole multiple of the
	// matching time slot's appointment length.
	StrictGranularity bool
}

func (req Request) End() schedule.Clock { return req.Start.Add(req.DurationMinutes) }

func checkDuration(req Request) error {
	if req.DurationMinutes < MinDurationMinutes || req.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("%w: %d minutes is outside [%d, %d]",
			ErrInvalidDuration, req.DurationMinutes, MinDurationMinutes, MaxDurationMinutes)
	}
	if !req.Start.Valid() || req.End() > schedule.EndOfDay {
		return fmt.Errorf("%w: %s + %d minutes crosses midnight", ErrInvalidDuration, req.Start, req.DurationMinutes)
	}
	return nil
}

func checkBox(d Day, req Request) error {
	switch {
	case !d.Box.Active:
		return fmt.Errorf("%w: box %s is inactive", ErrBoxUnavailable, d.Box.Name)
	case d.Box.Status == BoxMaintenance:
		return fmt.Errorf("%w: box %s is in maintenance", ErrBoxUnavailable, d.Box.Name)
	case !d.Box.OpenFor(req.Date, req.Start, req.End()):
		return fmt.Errorf("%w: box %s is closed at %s-%s on %s", ErrBoxUnavailable, d.Box.Name,
			req.Start, req.End(), schedule.WeekdayName(req.Date.Weekday()))
	}
	return nil
}

func matchingCandidate(d Day, start schedule.Clock) (schedule.Candidate, bool) {
	for _, c := range schedule.Candidates(d.Schedules, d.Date) {
		if c.Start == start {
			return c, true
		}
	}
	return schedule.Candidate{}, false
}

// Misaligned reports whether the requested duration is not a whole multiple of the
// appointment length of the time slot its start comes from. Starts outside the
// schedule are never misaligned; they fail elsewhere.
func Misaligned(d Day, req Request) bool {
	c, ok := matchingCandidate(d, req.Start)
	if !ok || c.Minutes <= 0 {
		return false
	}
	return req.DurationMinutes%c.Minutes != 0
}

// Validate checks req against d and, on success, returns a pending reservation
// with display fields copied from the parties and the box.
//
// Checks run in order: duration, box state and opening hours, doctor schedule,
// doctor double booking, granularity (strict policy only), box double booking.
func Validate(d Day, req Request, parties Parties, policy Policy, now time.Time) (*Reservation, error) {
	if err := checkDuration(req); err != nil {
		return nil, err
	}
	if err := checkBox(d, req); err != nil {
		return nil, err
	}

	if _, ok := matchingCandidate(d, req.Start); !ok {
		return nil, fmt.Errorf("%w: %s on %s is not in the doctor's schedule",
			ErrScheduleConflict, req.Start, req.Date.Format(time.DateOnly))
	}
	if other := collides(d.DoctorReservations, req.Date, req.Start, req.End()); other != nil {
		return nil, fmt.Errorf("%w: doctor already booked %s-%s", ErrScheduleConflict, other.Start, other.End)
	}
	if policy.StrictGranularity && Misaligned(d, req) {
		return nil, fmt.Errorf("%w: %d minutes does not align with the doctor's slot length",
			ErrInvalidDuration, req.DurationMinutes)
	}
	if other := collides(d.BoxReservations, req.Date, req.Start, req.End()); other != nil {
		return nil, fmt.Errorf("%w: box %s already booked %s-%s", ErrBoxUnavailable, d.Box.Name, other.Start, other.End)
	}

	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	return &Reservation{
		ID:                   uuid.New(),
		PatientID:            req.PatientID,
		DoctorID:             req.DoctorID,
		BoxID:                req.BoxID,
		Date:                 schedule.DateOf(req.Date),
		Start:                req.Start,
		End:                  req.End(),
		DurationMinutes:      req.DurationMinutes,
		Status:               StatusPending,
		AppointmentType:      req.AppointmentType,
		Priority:             priority,
		Reason:               req.Reason,
		Notes:                req.Notes,
		CreatedBy:            parties.Creator.UserID,
		PatientName:          parties.Patient.FullName,
		PatientPhone:         parties.Patient.Phone,
		PatientEmail:         optional(parties.Patient.Email),
		DoctorName:           parties.Doctor.FullName,
		DoctorSpecialization: parties.Doctor.Specialization,
		BoxName:              d.Box.Name,
		BoxLocation:          d.Box.Location,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
