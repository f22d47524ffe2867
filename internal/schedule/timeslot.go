package schedule

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

var ErrInvalidTimeSlot = errors.New("invalid time slot")

// Appointment lengths a time slot may offer. Reservations use the same bounds.
const (
	MinAppointmentMinutes = 15
	MaxAppointmentMinutes = 480
)

// TimeSlot is a sub-range of a schedule's day with its own appointment cadence.
type TimeSlot struct {
	Start              Clock `json:"start_time"`
	End                Clock `json:"end_time"`
	AppointmentMinutes int   `json:"appointment_duration"`
	BreakMinutes       int   `json:"break_between"`
	Available          bool  `json:"is_available"`
}

// NewTimeSlot builds an available TimeSlot and validates it.
func NewTimeSlot(start, end Clock, appointmentMinutes, breakMinutes int) (TimeSlot, error) {
	ts := TimeSlot{
		Start:              start,
		End:                end,
		AppointmentMinutes: appointmentMinutes,
		BreakMinutes:       breakMinutes,
		Available:          true,
	}
	if err := ts.Validate(); err != nil {
		return TimeSlot{}, err
	}
	return ts, nil
}

func (ts TimeSlot) Validate() error {
	switch {
	case !ts.Start.Valid() || ts.Start == EndOfDay:
		return fmt.Errorf("%w: start %s out of range", ErrInvalidTimeSlot, ts.Start)
	case !ts.End.Valid():
		return fmt.Errorf("%w: end %s out of range", ErrInvalidTimeSlot, ts.End)
	case ts.Start >= ts.End:
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidTimeSlot, ts.Start, ts.End)
	case ts.AppointmentMinutes < MinAppointmentMinutes || ts.AppointmentMinutes > MaxAppointmentMinutes:
		return fmt.Errorf("%w: appointment duration %d outside [%d, %d] minutes",
			ErrInvalidTimeSlot, ts.AppointmentMinutes, MinAppointmentMinutes, MaxAppointmentMinutes)
	case ts.BreakMinutes < 0:
		return fmt.Errorf("%w: break must not be negative", ErrInvalidTimeSlot)
	}
	return nil
}

// Step is the distance in minutes between consecutive appointment starts.
func (ts TimeSlot) Step() int {
	return ts.AppointmentMinutes + ts.BreakMinutes
}

// All yields every appointment start in [Start, End), Step minutes apart.
// An invalid slot yields nothing.
func (ts TimeSlot) All() iter.Seq[Clock] {
	return func(yield func(Clock) bool) {
		if ts.Validate() != nil || ts.Step() <= 0 {
			return
		}
		for cur := ts.Start; cur < ts.End; {
			if !yield(cur) {
				return
			}
			next := cur.Add(ts.Step())
			if next >= EndOfDay {
				return
			}
			cur = next
		}
	}
}

// Starts collects All into a slice.
func (ts TimeSlot) Starts() []Clock {
	return slices.Collect(ts.All())
}
