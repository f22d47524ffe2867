package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-box-booking/internal/booking"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

type CreateReservationRequest struct {
	PatientID       string  `json:"patient_id" validate:"required,uuid"`
	DoctorID        string  `json:"doctor_id" validate:"required,uuid"`
	BoxID           string  `json:"box_id" validate:"required,uuid"`
	Date            string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime       string  `json:"start_time" validate:"required"`
	DurationMinutes int     `json:"duration_minutes" validate:"required"`
	AppointmentType string  `json:"appointment_type" validate:"required,oneof=consultation procedure follow_up emergency"`
	Priority        string  `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Reason          *string `json:"reason" validate:"omitempty,max=1000"`
	Notes           *string `json:"notes" validate:"omitempty,max=2000"`
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed in_progress completed cancelled no_show"`
	Reason string `json:"reason" validate:"omitempty,max=1000"`
}

type TimeSlotRequest struct {
	StartTime           string `json:"start_time" validate:"required"`
	EndTime             string `json:"end_time" validate:"required"`
	AppointmentDuration int    `json:"appointment_duration" validate:"gt=0"`
	BreakBetween        int    `json:"break_between" validate:"gte=0"`
	IsAvailable         *bool  `json:"is_available"`
}

type CreateScheduleRequest struct {
	DoctorID      string            `json:"doctor_id" validate:"required,uuid"`
	DoctorName    string            `json:"doctor_name" validate:"omitempty,max=255"`
	ScheduleType  string            `json:"schedule_type" validate:"required,oneof=regular exception vacation sick_leave"`
	DayOfWeek     *string           `json:"day_of_week" validate:"required_if=ScheduleType regular"`
	SpecificDate  *string           `json:"specific_date" validate:"omitempty,datetime=2006-01-02"`
	EffectiveFrom string            `json:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo   *string           `json:"effective_to" validate:"omitempty,datetime=2006-01-02"`
	TimeSlots     []TimeSlotRequest `json:"time_slots" validate:"dive"`
	IsAvailable   *bool             `json:"is_available"`
	Notes         *string           `json:"notes" validate:"omitempty,max=2000"`
}

type ReservationResponse struct {
	ID                   uuid.UUID  `json:"id"`
	PatientID            uuid.UUID  `json:"patient_id"`
	DoctorID             uuid.UUID  `json:"doctor_id"`
	BoxID                uuid.UUID  `json:"box_id"`
	Date                 string     `json:"date"`
	StartTime            string     `json:"start_time"`
	EndTime              string     `json:"end_time"`
	DurationMinutes      int        `json:"duration_minutes"`
	Status               string     `json:"status"`
	AppointmentType      string     `json:"appointment_type"`
	Priority             string     `json:"priority"`
	Reason               *string    `json:"reason,omitempty"`
	Notes                *string    `json:"notes,omitempty"`
	PatientName          string     `json:"patient_name"`
	DoctorName           string     `json:"doctor_name"`
	DoctorSpecialization *string    `json:"doctor_specialization,omitempty"`
	BoxName              string     `json:"box_name"`
	BoxLocation          string     `json:"box_location"`
	ConfirmationCode     *string    `json:"confirmation_code,omitempty"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	CheckedInAt          *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt         *time.Time `json:"checked_out_at,omitempty"`
	ActualDuration       *int       `json:"actual_duration,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason   *string    `json:"cancellation_reason,omitempty"`
	Version              int        `json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func newReservationResponse(r *booking.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:                   r.ID,
		PatientID:            r.PatientID,
		DoctorID:             r.DoctorID,
		BoxID:                r.BoxID,
		Date:                 r.Date.Format(time.DateOnly),
		StartTime:            r.Start.String(),
		EndTime:              r.End.String(),
		DurationMinutes:      r.DurationMinutes,
		Status:               string(r.Status),
		AppointmentType:      string(r.AppointmentType),
		Priority:             string(r.Priority),
		Reason:               r.Reason,
		Notes:                r.Notes,
		PatientName:          r.PatientName,
		DoctorName:           r.DoctorName,
		DoctorSpecialization: r.DoctorSpecialization,
		BoxName:              r.BoxName,
		BoxLocation:          r.BoxLocation,
		ConfirmationCode:     r.ConfirmationCode,
		ConfirmedAt:          r.ConfirmedAt,
		CheckedInAt:          r.CheckedInAt,
		CheckedOutAt:         r.CheckedOutAt,
		ActualDuration:       r.ActualDuration,
		CancelledAt:          r.CancelledAt,
		CancellationReason:   r.CancellationReason,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type ReservationListResponse struct {
	Items  []ReservationResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID  `json:"doctor_id"`
	BoxID    *uuid.UUID `json:"box_id,omitempty"`
	Date     string     `json:"date"`
	Slots    []string   `json:"slots"`
}

func clockStrings(cs []schedule.Clock) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.String())
	}
	return out
}

type AvailabilityResponse struct {
	DoctorID       uuid.UUID `json:"doctor_id"`
	DoctorName     string    `json:"doctor_name"`
	Date           string    `json:"date"`
	AvailableSlots []string  `json:"available_slots"`
	TotalSlots     int       `json:"total_slots"`
	BookedSlots    int       `json:"booked_slots"`
	Percentage     float64   `json:"availability_percentage"`
}

type ScheduleResponse struct {
	ID            uuid.UUID           `json:"id"`
	DoctorID      uuid.UUID           `json:"doctor_id"`
	DoctorName    string              `json:"doctor_name"`
	ScheduleType  string              `json:"schedule_type"`
	DayOfWeek     *string             `json:"day_of_week,omitempty"`
	SpecificDate  *string             `json:"specific_date,omitempty"`
	EffectiveFrom string              `json:"effective_from"`
	EffectiveTo   *string             `json:"effective_to,omitempty"`
	TimeSlots     []schedule.TimeSlot `json:"time_slots"`
	IsAvailable   bool                `json:"is_available"`
	Notes         *string             `json:"notes,omitempty"`
	CreatedBy     uuid.UUID           `json:"created_by"`
}

func newScheduleResponse(s schedule.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		ID:            s.ID,
		DoctorID:      s.DoctorID,
		DoctorName:    s.DoctorName,
		ScheduleType:  string(s.Kind()),
		EffectiveFrom: s.EffectiveFrom.Format(time.DateOnly),
		TimeSlots:     s.Slots,
		IsAvailable:   s.Available,
		Notes:         s.Notes,
		CreatedBy:     s.CreatedBy,
	}
	if resp.TimeSlots == nil {
		resp.TimeSlots = []schedule.TimeSlot{}
	}
	weekday, date := schedule.Columns(s.Rule)
	if weekday != nil {
		name := schedule.WeekdayName(*weekday)
		resp.DayOfWeek = &name
	}
	if date != nil {
		d := date.Format(time.DateOnly)
		resp.SpecificDate = &d
	}
	if s.EffectiveTo != nil {
		d := s.EffectiveTo.Format(time.DateOnly)
		resp.EffectiveTo = &d
	}
	return resp
}

type ConflictResponse struct {
	ScheduleID   uuid.UUID `json:"schedule_id"`
	ScheduleType string    `json:"schedule_type"`
	Override     bool      `json:"override"`
}

func newConflictResponses(cs []schedule.Conflict) []ConflictResponse {
	out := make([]ConflictResponse, 0, len(cs))
	for _, c := range cs {
		out = append(out, ConflictResponse{
			ScheduleID:   c.Existing.ID,
			ScheduleType: string(c.Existing.Kind()),
			Override:     c.Override,
		})
	}
	return out
}

type CreateScheduleResponse struct {
	Schedule  ScheduleResponse   `json:"schedule"`
	Overrides []ConflictResponse `json:"overrides"`
}

type CheckScheduleResponse struct {
	Conflicts []ConflictResponse `json:"conflicts"`
	Blocking  bool               `json:"blocking"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
