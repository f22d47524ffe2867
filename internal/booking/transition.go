package booking

import (
	"fmt"
	"time"

	"github.com/hackgods/clinic-box-booking/internal/identity"
)

type edge struct {
	from, to Status
}

// ownership limits a role to reservations it is party to.
type ownership int

const (
	anyReservation ownership = iota
	ownReservation
)

// capabilities lists every permitted transition and the roles allowed to
// perform it. Anything absent fails with ErrInvalidTransition.
var capabilities = map[edge]map[identity.Role]ownership{
	{StatusPending, StatusConfirmed}: {
		identity.RoleAdmin:  anyReservation,
		identity.RoleDoctor: ownReservation,
	},
	{StatusPending, StatusCancelled}: {
		identity.RoleAdmin:   anyReservation,
		identity.RoleDoctor:  ownReservation,
		identity.RolePatient: ownReservation,
	},
	{StatusConfirmed, StatusCancelled}: {
		identity.RoleAdmin:   anyReservation,
		identity.RoleDoctor:  ownReservation,
		identity.RolePatient: ownReservation,
	},
	{StatusConfirmed, StatusInProgress}: {
		identity.RoleAdmin:  anyReservation,
		identity.RoleDoctor: ownReservation,
	},
	{StatusInProgress, StatusCompleted}: {
		identity.RoleAdmin:  anyReservation,
		identity.RoleDoctor: ownReservation,
	},
	{StatusConfirmed, StatusNoShow}: {
		identity.RoleAdmin:  anyReservation,
		identity.RoleDoctor: ownReservation,
		identity.RoleSystem: anyReservation,
	},
}

// Permitted reports whether actor may move r to target.
func Permitted(r Reservation, target Status, actor identity.Actor) bool {
	roles, ok := capabilities[edge{r.Status, target}]
	if !ok {
		return false
	}
	scope, ok := roles[actor.Role]
	if !ok {
		return false
	}
	if scope == anyReservation {
		return true
	}
	switch actor.Role {
	case identity.RolePatient:
		return actor.UserID == r.PatientID
	case identity.RoleDoctor:
		return actor.UserID == r.DoctorID
	}
	return false
}

// TransitionOptions carries caller supplied values for side effects.
type TransitionOptions struct {
	Reason           string
	ConfirmationCode string
}

// Change is the outcome of a transition. Box is nil when the box record is untouched.
type Change struct {
	Reservation Reservation
	Box         *Box
}

// Transition moves r to target on behalf of actor and applies the side effects
// on r and its box. Neither input is modified.
func Transition(r Reservation, box Box, target Status, actor identity.Actor, opts TransitionOptions, now time.Time) (Change, error) {
	if !Permitted(r, target, actor) {
		return Change{}, fmt.Errorf("%w: %s -> %s by %s", ErrInvalidTransition, r.Status, target, actor.Role)
	}

	next := r
	next.Status = target
	next.UpdatedAt = now
	by := actor.UserID
	boxChanged := false

	switch target {
	case StatusConfirmed:
		next.ConfirmedAt = &now
		next.ConfirmedBy = &by
		if opts.ConfirmationCode != "" {
			code := opts.ConfirmationCode
			next.ConfirmationCode = &code
		}
		if box.CurrentReservationID == nil && box.Status == BoxAvailable {
			box.hold(next, BoxReserved)
			boxChanged = true
		}

	case StatusInProgress:
		if !box.Bookable() {
			return Change{}, fmt.Errorf("%w: box %s cannot host a check-in", ErrBoxUnavailable, box.Name)
		}
		if box.Status == BoxOccupied && !box.HeldBy(r.ID) {
			return Change{}, fmt.Errorf("%w: box %s is occupied", ErrBoxUnavailable, box.Name)
		}
		next.CheckedInAt = &now
		box.hold(next, BoxOccupied)
		boxChanged = true

	case StatusCompleted:
		next.CheckedOutAt = &now
		if r.CheckedInAt != nil {
			actual := int(now.Sub(*r.CheckedInAt).Round(time.Minute) / time.Minute)
			next.ActualDuration = &actual
		}
		boxChanged = box.release(next)

	case StatusCancelled:
		next.CancelledAt = &now
		next.CancelledBy = &by
		if opts.Reason != "" {
			reason := opts.Reason
			next.CancellationReason = &reason
		}
		boxChanged = box.release(next)

	case StatusNoShow:
		boxChanged = box.release(next)
	}

	change := Change{Reservation: next}
	if boxChanged {
		b := box
		b.UpdatedAt = now
		change.Box = &b
	}
	return change, nil
}
