package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/clinic-box-booking/internal/booking"
	"github.com/hackgods/clinic-box-booking/internal/identity"
	"github.com/hackgods/clinic-box-booking/internal/schedule"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the 400 response itself and reports whether the caller may proceed.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// writeServiceError maps domain errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidDuration),
		errors.Is(err, schedule.ErrInvalidTimeSlot),
		errors.Is(err, schedule.ErrInvalidSchedule):
		writeError(w, http.StatusUnprocessableEntity, errorCode(err), err.Error())
	case errors.Is(err, booking.ErrScheduleConflict):
		writeError(w, http.StatusConflict, "schedule_conflict", err.Error())
	case errors.Is(err, schedule.ErrScheduleConflict):
		writeError(w, http.StatusConflict, "schedule_overlap", err.Error())
	case errors.Is(err, booking.ErrBoxUnavailable):
		writeError(w, http.StatusConflict, "box_unavailable", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, booking.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "busy", "booking window is being updated, please retry shortly")
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrForbidden),
		errors.Is(err, schedule.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, identity.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, booking.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, schedule.ErrInvalidTimeSlot):
		return "invalid_time_slot"
	}
	return "invalid_schedule"
}
