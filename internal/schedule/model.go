package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrScheduleConflict = errors.New("schedule conflicts with an existing schedule")
	ErrScheduleNotFound = errors.New("schedule not found")
)

type Kind string

const (
	KindRegular   Kind = "regular"
	KindException Kind = "exception"
	KindVacation  Kind = "vacation"
	KindSickLeave Kind = "sick_leave"
)

func (k Kind) Valid() bool {
	switch k {
	case KindRegular, KindException, KindVacation, KindSickLeave:
		return true
	}
	return false
}

// Dated reports whether schedules of this kind apply to one specific date.
func (k Kind) Dated() bool {
	return k == KindException || k == KindVacation || k == KindSickLeave
}

// Rule says on which days a schedule applies. It is one of Regular, Exception or Leave.
type Rule interface {
	Kind() Kind
	appliesOn(date time.Time) bool
}

// Regular repeats every week on Weekday.
type Regular struct {
	Weekday time.Weekday
}

// Exception replaces the regular template on Date with its own slots.
type Exception struct {
	Date time.Time
}

// Leave blocks Date entirely. Reason is KindVacation or KindSickLeave.
type Leave struct {
	Date   time.Time
	Reason Kind
}

func (Regular) Kind() Kind   { return KindRegular }
func (Exception) Kind() Kind { return KindException }
func (l Leave) Kind() Kind {
	if l.Reason == KindSickLeave {
		return KindSickLeave
	}
	return KindVacation
}

func (r Regular) appliesOn(date time.Time) bool   { return date.Weekday() == r.Weekday }
func (e Exception) appliesOn(date time.Time) bool { return SameDate(e.Date, date) }
func (l Leave) appliesOn(date time.Time) bool     { return SameDate(l.Date, date) }

// NewRule builds the variant for kind from its flat storage columns.
func NewRule(kind Kind, weekday *time.Weekday, date *time.Time) (Rule, error) {
	switch kind {
	case KindRegular:
		if weekday == nil || date != nil {
			return nil, fmt.Errorf("%w: regular schedules need a weekday and no specific date", ErrInvalidSchedule)
		}
		return Regular{Weekday: *weekday}, nil
	case KindException, KindVacation, KindSickLeave:
		if date == nil || weekday != nil {
			return nil, fmt.Errorf("%w: %s schedules need a specific date and no weekday", ErrInvalidSchedule, kind)
		}
		if kind == KindException {
			return Exception{Date: DateOf(*date)}, nil
		}
		return Leave{Date: DateOf(*date), Reason: kind}, nil
	}
	return nil, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, kind)
}

// Columns flattens a rule into (weekday, specific date) for storage.
func Columns(r Rule) (*time.Weekday, *time.Time) {
	switch v := r.(type) {
	case Regular:
		d := v.Weekday
		return &d, nil
	case Exception:
		d := DateOf(v.Date)
		return nil, &d
	case Leave:
		d := DateOf(v.Date)
		return nil, &d
	}
	return nil, nil
}

// ruleDate returns the specific date of a dated rule.
func ruleDate(r Rule) (time.Time, bool) {
	switch v := r.(type) {
	case Exception:
		return v.Date, true
	case Leave:
		return v.Date, true
	}
	return time.Time{}, false
}

// Schedule is a doctor's availability template.
type Schedule struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	DoctorName    string
	Rule          Rule
	EffectiveFrom time.Time
	EffectiveTo   *time.Time // nil means open ended
	Slots         []TimeSlot
	Available     bool
	Notes         *string
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s Schedule) Kind() Kind {
	if s.Rule == nil {
		return ""
	}
	return s.Rule.Kind()
}

func (s Schedule) Validate() error {
	if s.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor is required", ErrInvalidSchedule)
	}
	if s.Rule == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidSchedule)
	}
	if s.EffectiveFrom.IsZero() {
		return fmt.Errorf("%w: effective_from is required", ErrInvalidSchedule)
	}
	if s.EffectiveTo != nil && DateOf(*s.EffectiveTo).Before(DateOf(s.EffectiveFrom)) {
		return fmt.Errorf("%w: effective_to is before effective_from", ErrInvalidSchedule)
	}
	if d, ok := ruleDate(s.Rule); ok && !s.InEffect(d) {
		return fmt.Errorf("%w: specific date %s is outside the effective range", ErrInvalidSchedule, d.Format(time.DateOnly))
	}
	if l, ok := s.Rule.(Leave); ok {
		if l.Reason != KindVacation && l.Reason != KindSickLeave {
			return fmt.Errorf("%w: leave reason %q", ErrInvalidSchedule, l.Reason)
		}
		if len(s.Slots) > 0 {
			return fmt.Errorf("%w: leave schedules carry no time slots", ErrInvalidSchedule)
		}
		return nil
	}
	if s.Available && len(s.Slots) == 0 {
		return fmt.Errorf("%w: at least one time slot is required", ErrInvalidSchedule)
	}
	for i, ts := range s.Slots {
		if err := ts.Validate(); err != nil {
			return fmt.Errorf("time slot %d: %w", i, err)
		}
	}
	return nil
}

// InEffect reports whether date falls inside the effective range.
func (s Schedule) InEffect(date time.Time) bool {
	d := DateOf(date)
	if d.Before(DateOf(s.EffectiveFrom)) {
		return false
	}
	if s.EffectiveTo != nil && d.After(DateOf(*s.EffectiveTo)) {
		return false
	}
	return true
}

// AppliesOn reports whether the schedule covers date, ignoring availability.
func (s Schedule) AppliesOn(date time.Time) bool {
	return s.Rule != nil && s.InEffect(date) && s.Rule.appliesOn(date)
}
