package booking

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// ActiveStatuses are the statuses that hold a doctor's and a box's time.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusInProgress}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Active() bool { return slices.Contains(ActiveStatuses, s) }

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type BoxStatus string

const (
	BoxAvailable   BoxStatus = "available"
	BoxOccupied    BoxStatus = "occupied"
	BoxMaintenance BoxStatus = "maintenance"
	BoxReserved    BoxStatus = "reserved"
)

func (s BoxStatus) Valid() bool {
	switch s {
	case BoxAvailable, BoxOccupied, BoxMaintenance, BoxReserved:
		return true
	}
	return false
}

type AppointmentType string

const (
	AppointmentConsultation AppointmentType = "consultation"
	AppointmentProcedure    AppointmentType = "procedure"
	AppointmentFollowUp     AppointmentType = "follow_up"
	AppointmentEmergency    AppointmentType = "emergency"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case AppointmentConsultation, AppointmentProcedure, AppointmentFollowUp, AppointmentEmergency:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

const (
	MinDurationMinutes = schedule.MinAppointmentMinutes
	MaxDurationMinutes = schedule.MaxAppointmentMinutes
)

type User struct {
	ID             uuid.UUID
	Role           identity.Role
	Email          string
	FullName       string
	Phone          *string
	Specialization *string
	LicenseNumber  *string
	Active         bool
	Verified       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Box is a physical room that can be reserved.
type Box struct {
	ID                   uuid.UUID
	Name                 string
	Description          *string
	Location             string
	Capacity             int
	Equipment            []string
	Status               BoxStatus
	Active               bool
	AvailableFrom        schedule.Clock
	AvailableTo          schedule.Clock
	AvailableDays        []time.Weekday
	CurrentReservationID *uuid.UUID
	CurrentDoctorID      *uuid.UUID
	MaintenanceNotes     *string
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Bookable reports whether the box accepts reservations at all.
func (b Box) Bookable() bool {
	return b.Active && b.Status != BoxMaintenance
}

// OpenFor reports whether [start, end) on date lies inside the box's opening hours.
func (b Box) OpenFor(date time.Time, start, end schedule.Clock) bool {
	if !slices.Contains(b.AvailableDays, date.Weekday()) {
		return false
	}
	return start >= b.AvailableFrom && end <= b.AvailableTo
}

// HeldBy reports whether the box's current-reservation pointer is id.
func (b Box) HeldBy(id uuid.UUID) bool {
	return b.CurrentReservationID != nil && *b.CurrentReservationID == id
}

func (b *Box) hold(r Reservation, status BoxStatus) {
	id, doctor := r.ID, r.DoctorID
	b.Status = status
	b.CurrentReservationID = &id
	b.CurrentDoctorID = &doctor
}

// release frees the box if r holds it. It reports whether anything changed.
func (b *Box) release(r Reservation) bool {
	if !b.HeldBy(r.ID) {
		return false
	}
	if b.Status == BoxOccupied || b.Status == BoxReserved {
		b.Status = BoxAvailable
	}
	b.CurrentReservationID = nil
	b.CurrentDoctorID = nil
	return true
}

// Reservation is a booked appointment. Display fields are copied from the
// referenced user and box records when the reservation is created.
type Reservation struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	BoxID     uuid.UUID

	Date            time.Time
	Start           schedule.Clock
	End             schedule.Clock
	DurationMinutes int

	Status          Status
	AppointmentType AppointmentType
	Priority        Priority
	Reason          *string
	Notes           *string
	CreatedBy       uuid.UUID

	PatientName          string
	PatientPhone         *string
	PatientEmail         *string
	DoctorName           string
	DoctorSpecialization *string
	BoxName              string
	BoxLocation          string

	ConfirmationCode   *string
	ConfirmedAt        *time.Time
	ConfirmedBy        *uuid.UUID
	CheckedInAt        *time.Time
	CheckedOutAt       *time.Time
	ActualDuration     *int
	CancelledAt        *time.Time
	CancelledBy        *uuid.UUID
	CancellationReason *string

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Reservation) Active() bool { return r.Status.Active() }

func (r Reservation) Cancellable() bool {
	return r.Status == StatusPending || r.Status == StatusConfirmed
}

// StartsAt and EndsAt anchor the reservation interval to its date in loc.
func (r Reservation) StartsAt(loc *time.Location) time.Time { return anchor(r.Date, r.Start, loc) }
func (r Reservation) EndsAt(loc *time.Location) time.Time   { return anchor(r.Date, r.End, loc) }

// PastDue reports whether a pending or confirmed reservation has already ended.
func (r Reservation) PastDue(now time.Time) bool {
	if r.Status != StatusPending && r.Status != StatusConfirmed {
		return false
	}
	return r.EndsAt(now.Location()).Before(now)
}

func anchor(date time.Time, c schedule.Clock, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Add(time.Duration(c) * time.Minute)
}

type EventLog struct {
	ID            int64
	EventType     string
	ReservationID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
