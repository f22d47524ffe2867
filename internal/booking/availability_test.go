package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

var (
	monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	sunday = monday.AddDate(0, 0, 6)
)

func clock(t *testing.T, s string) schedule.Clock {
	t.Helper()
	c, err := schedule.ParseClock(s)
	require.NoError(t, err)
	return c
}

func mondayMorning(t *testing.T, doctor uuid.UUID) schedule.Schedule {
	t.Helper()
	ts, err := schedule.NewTimeSlot(clock(t, "08:00"), clock(t, "12:00"), 30, 5)
	require.NoError(t, err)
	return schedule.Schedule{
		ID:            uuid.New(),
		DoctorID:      doctor,
		Rule:          schedule.Regular{Weekday: time.Monday},
		EffectiveFrom: monday.AddDate(0, -1, 0),
		Slots:         []schedule.TimeSlot{ts},
		Available:     true,
	}
}

func openBox(t *testing.T) Box {
	t.Helper()
	return Box{
		ID:            uuid.New(),
		Name:          "Box A",
		Location:      "Floor 1",
		Capacity:      1,
		Status:        BoxAvailable,
		Active:        true,
		AvailableFrom: clock(t, "08:00"),
		AvailableTo:   clock(t, "18:00"),
		AvailableDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Version:       1,
	}
}

func reservationAt(t *testing.T, doctor, box uuid.UUID, start string, minutes int, status Status) Reservation {
	t.Helper()
	s := clock(t, start)
	return Reservation{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		DoctorID:        doctor,
		BoxID:           box,
		Date:            monday,
		Start:           s,
		End:             s.Add(minutes),
		DurationMinutes: minutes,
		Status:          status,
		Version:         1,
	}
}

type dayFixture struct {
	doctor  User
	patient User
	day     Day
}

func newDayFixture(t *testing.T) dayFixture {
	t.Helper()
	specialty := "cardiology"
	doctor := User{ID: uuid.New(), Role: identity.RoleDoctor, FullName: "Dr. Ana Ruiz", Specialization: &specialty, Active: true}
	patient := User{ID: uuid.New(), Role: identity.RolePatient, FullName: "Luis Gomez", Email: "luis@example.com", Active: true}
	return dayFixture{
		doctor:  doctor,
		patient: patient,
		day: Day{
			Date:      monday,
			Schedules: []schedule.Schedule{mondayMorning(t, doctor.ID)},
			Box:       openBox(t),
		},
	}
}

func (f dayFixture) request(t *testing.T, start string, minutes int) Request {
	t.Helper()
	return Request{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		BoxID:           f.day.Box.ID,
		Date:            monday,
		Start:           clock(t, start),
		DurationMinutes: minutes,
		AppointmentType: AppointmentConsultation,
	}
}

func (f dayFixture) parties() Parties {
	return Parties{
		Patient: f.patient,
		Doctor:  f.doctor,
		Creator: identity.Actor{UserID: f.patient.ID, Role: identity.RolePatient},
	}
}

func starts(t *testing.T, ss ...string) []schedule.Clock {
	t.Helper()
	out := make([]schedule.Clock, 0, len(ss))
	for _, s := range ss {
		out = append(out, clock(t, s))
	}
	return out
}

func TestOverlapsHalfOpen(t *testing.T) {
	a, b, c := schedule.NewClock(8, 0), schedule.NewClock(8, 30), schedule.NewClock(9, 0)
	assert.True(t, Overlaps(a, c, b, c))
	assert.False(t, Overlaps(a, b, b, c))
	assert.False(t, Overlaps(b, c, a, b))
}

func TestBookableSlotsFreeDay(t *testing.T) {
	f := newDayFixture(t)
	got := BookableSlots(f.day)
	assert.Equal(t, starts(t, "08:00", "08:35", "09:10", "09:45", "10:20", "10:55", "11:30"), got)
	assert.Equal(t, got, BookableSlots(f.day))
}

func TestBookableSlotsOnlyOffersBookableLengths(t *testing.T) {
	_, err := schedule.NewTimeSlot(clock(t, "13:00"), clock(t, "14:00"), MinDurationMinutes-5, 0)
	require.ErrorIs(t, err, schedule.ErrInvalidTimeSlot)

	f := newDayFixture(t)
	f.day.Schedules[0].Slots = append(f.day.Schedules[0].Slots, schedule.TimeSlot{
		Start: clock(t, "13:00"), End: clock(t, "14:00"), AppointmentMinutes: 10, Available: true,
	})

	got := BookableSlots(f.day)
	assert.Equal(t, starts(t, "08:00", "08:35", "09:10", "09:45", "10:20", "10:55", "11:30"), got)
	for _, start := range got {
		_, err := Validate(f.day, f.request(t, start.String(), MinDurationMinutes), f.parties(), Policy{}, monday)
		assert.NoError(t, err, "slot %s", start)
	}
}

func TestBookableSlotsSubtractsDoctorAndBoxReservations(t *testing.T) {
	f := newDayFixture(t)
	f.day.DoctorReservations = []Reservation{
		reservationAt(t, f.doctor.ID, uuid.New(), "08:35", 30, StatusConfirmed),
		reservationAt(t, f.doctor.ID, uuid.New(), "10:20", 30, StatusCancelled),
	}
	f.day.BoxReservations = []Reservation{
		reservationAt(t, uuid.New(), f.day.Box.ID, "11:00", 30, StatusPending),
	}

	got := BookableSlots(f.day)
	assert.Equal(t, starts(t, "08:00", "09:10", "09:45", "10:20", "11:30"), got)
}

func TestBookableSlotsRespectsBoxState(t *testing.T) {
	f := newDayFixture(t)

	f.day.Box.Status = BoxMaintenance
	assert.Empty(t, BookableSlots(f.day))

	f.day.Box.Status = BoxAvailable
	f.day.Box.Active = false
	assert.Empty(t, BookableSlots(f.day))

	f.day.Box.Active = true
	f.day.Box.AvailableFrom = clock(t, "09:00")
	f.day.Box.AvailableTo = clock(t, "10:30")
	assert.Equal(t, starts(t, "09:10", "09:45"), BookableSlots(f.day))

	f.day.Date = sunday
	assert.Empty(t, BookableSlots(f.day))
}

func TestBookableSlotsValidateForTheirOwnDuration(t *testing.T) {
	f := newDayFixture(t)
	f.day.DoctorReservations = []Reservation{reservationAt(t, f.doctor.ID, f.day.Box.ID, "09:45", 30, StatusConfirmed)}
	f.day.BoxReservations = f.day.DoctorReservations

	for _, start := range BookableSlots(f.day) {
		req := f.request(t, start.String(), 30)
		_, err := Validate(f.day, req, f.parties(), Policy{}, monday)
		assert.NoError(t, err, "slot %s", start)
	}
}

func TestValidateCreatesPendingReservationWithSnapshots(t *testing.T) {
	f := newDayFixture(t)
	now := monday.Add(-48 * time.Hour)

	res, err := Validate(f.day, f.request(t, "08:35", 30), f.parties(), Policy{}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, PriorityNormal, res.Priority)
	assert.Equal(t, clock(t, "09:05"), res.End)
	assert.Equal(t, 30, res.DurationMinutes)
	assert.Equal(t, "Dr. Ana Ruiz", res.DoctorName)
	assert.Equal(t, "cardiology", *res.DoctorSpecialization)
	assert.Equal(t, "Luis Gomez", res.PatientName)
	assert.Equal(t, "luis@example.com", *res.PatientEmail)
	assert.Equal(t, "Box A", res.BoxName)
	assert.Equal(t, f.patient.ID, res.CreatedBy)
	assert.Equal(t, now, res.CreatedAt)
	assert.NotEqual(t, uuid.Nil, res.ID)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		minutes int
		mutate  func(t *testing.T, f *dayFixture)
		policy  Policy
		want    error
	}{
		{name: "too short", start: "08:00", minutes: 10, want: ErrInvalidDuration},
		{name: "too long", start: "08:00", minutes: 481, want: ErrInvalidDuration},
		{name: "crosses midnight", start: "23:50", minutes: 30, want: ErrInvalidDuration},
		{
			name: "maintenance", start: "08:00", minutes: 30, want: ErrBoxUnavailable,
			mutate: func(t *testing.T, f *dayFixture) { f.day.Box.Status = BoxMaintenance },
		},
		{
			name: "inactive box", start: "08:00", minutes: 30, want: ErrBoxUnavailable,
			mutate: func(t *testing.T, f *dayFixture) { f.day.Box.Active = false },
		},
		{
			name: "box closed", start: "08:00", minutes: 30, want: ErrBoxUnavailable,
			mutate: func(t *testing.T, f *dayFixture) { f.day.Box.AvailableFrom = clock(t, "10:00") },
		},
		{name: "not a slot start", start: "08:10", minutes: 30, want: ErrScheduleConflict},
		{
			name: "doctor on leave", start: "08:00", minutes: 30, want: ErrScheduleConflict,
			mutate: func(t *testing.T, f *dayFixture) {
				f.day.Schedules = append(f.day.Schedules, schedule.Schedule{
					ID:            uuid.New(),
					DoctorID:      f.doctor.ID,
					Rule:          schedule.Leave{Date: monday, Reason: schedule.KindSickLeave},
					EffectiveFrom: monday,
					Available:     true,
				})
			},
		},
		{
			name: "doctor double booked", start: "08:35", minutes: 30, want: ErrScheduleConflict,
			mutate: func(t *testing.T, f *dayFixture) {
				f.day.DoctorReservations = []Reservation{reservationAt(t, f.doctor.ID, uuid.New(), "08:50", 15, StatusInProgress)}
			},
		},
		{
			name: "box double booked", start: "08:35", minutes: 30, want: ErrBoxUnavailable,
			mutate: func(t *testing.T, f *dayFixture) {
				f.day.BoxReservations = []Reservation{reservationAt(t, uuid.New(), f.day.Box.ID, "08:20", 30, StatusPending)}
			},
		},
		{name: "strict granularity", start: "08:00", minutes: 45, policy: Policy{StrictGranularity: true}, want: ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDayFixture(t)
			if tt.mutate != nil {
				tt.mutate(t, &f)
			}
			res, err := Validate(f.day, f.request(t, tt.start, tt.minutes), f.parties(), tt.policy, monday)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestValidateToleratesMisalignedDurationByDefault(t *testing.T) {
	f := newDayFixture(t)
	req := f.request(t, "08:00", 45)

	assert.True(t, Misaligned(f.day, req))
	res, err := Validate(f.day, req, f.parties(), Policy{}, monday)
	require.NoError(t, err)
	assert.Equal(t, clock(t, "08:45"), res.End)

	assert.False(t, Misaligned(f.day, f.request(t, "08:00", 60)))
}

func TestValidateIgnoresFinishedReservations(t *testing.T) {
	f := newDayFixture(t)
	for _, st := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		f.day.DoctorReservations = append(f.day.DoctorReservations, reservationAt(t, f.doctor.ID, f.day.Box.ID, "08:00", 30, st))
	}
	f.day.BoxReservations = f.day.DoctorReservations

	_, err := Validate(f.day, f.request(t, "08:00", 30), f.parties(), Policy{}, monday)
	assert.NoError(t, err)
}
