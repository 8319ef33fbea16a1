// Package policy decides which actor may move a reservation between statuses.
// It is pure: callers load the reservation and pass the actor from the token.
package policy

import "github.com/leenbank/leenbank/internal/model"

// Actor is the authenticated caller.
type Actor struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// Owns reports whether the reservation belongs to the actor.
func (a Actor) Owns(r *model.Reservation) bool {
	return r != nil && r.UserID == a.UserID
}

// CanTransition reports whether actor may move r from one status to another.
//
// Admins may set any status, but archiving requires the reservation to be
// RETURNED. Owners may only request a return of an approved reservation.
func CanTransition(actor Actor, r *model.Reservation, from, to model.Status) bool {
	if actor.IsAdmin() {
		if to == model.StatusArchived {
			return from == model.StatusReturned
		}
		return true
	}
	if actor.Role != model.RoleStudent || !actor.Owns(r) {
		return false
	}
	return from == model.StatusApproved && to == model.StatusReturnPending
}

// CanDelete reports whether actor may delete r. Owners can only cancel
// pending reservations.
func CanDelete(actor Actor, r *model.Reservation) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.Role == model.RoleStudent && actor.Owns(r) && r.Status == model.StatusPending
}

// CanCreate reports whether actor may place reservations.
func CanCreate(actor Actor) bool {
	return actor.Role == model.RoleStudent
}

// CanChangeQuantity reports whether actor may edit the quantity of an existing
// reservation.
func CanChangeQuantity(actor Actor) bool {
	return actor.IsAdmin()
}
