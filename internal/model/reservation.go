package model

import "time"

// Status is the lifecycle state of a reservation.
type Status string

// Reservation statuses.
const (
	StatusPending       Status = "PENDING"
	StatusApproved      Status = "APPROVED"
	StatusRejected      Status = "REJECTED"
	StatusReturnPending Status = "RETURN_PENDING"
	StatusReturned      Status = "RETURNED"
	StatusArchived      Status = "ARCHIVED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusReturnPending, StatusReturned, StatusArchived:
		return true
	}
	return false
}

// Held reports whether a reservation in s still counts towards its item's
// reserved counter.
func (s Status) Held() bool {
	return s == StatusPending || s == StatusApproved || s == StatusReturnPending
}

// HeldStatuses lists every status for which Held is true.
var HeldStatuses = []Status{StatusPending, StatusApproved, StatusReturnPending}

var transitions = map[Status][]Status{
	StatusPending:       {StatusApproved, StatusRejected},
	StatusApproved:      {StatusReturnPending},
	StatusReturnPending: {StatusReturned, StatusApproved},
	StatusReturned:      {StatusArchived},
}

// CanMove reports whether the lifecycle allows going from one status to another.
func CanMove(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// HeldQuantity is the amount a reservation of qty in status s holds.
func HeldQuantity(s Status, qty int) int {
	if s.Held() {
		return qty
	}
	return 0
}

// Reservation is a student's request for a quantity of one item.
type Reservation struct {
	ID           int64     `json:"id"`
	ItemID       int64     `json:"item_id"`
	UserID       int64     `json:"user_id"`
	Quantity     int       `json:"quantity"`
	Status       Status    `json:"status"`
	ReservedDate time.Time `json:"reserved_date"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReservationView is a reservation joined with its item and student.
type ReservationView struct {
	ID           int64     `json:"id"`
	ItemID       int64     `json:"item_id"`
	ItemName     Localized `json:"item_name"`
	ItemLabel    string    `json:"item_label"`
	Location     string    `json:"location"`
	UserID       int64     `json:"user_id"`
	StudentName  string    `json:"student_name"`
	Quantity     int       `json:"quantity"`
	Status       Status    `json:"status"`
	ReservedDate time.Time `json:"reserved_date"`
}

// Event statuses that are not lifecycle states.
const (
	EventCreated Status = ""
	EventDeleted Status = "DELETED"
)

// ReservationEvent records one change to a reservation and its counter effect.
type ReservationEvent struct {
	ID            int64     `json:"id"`
	ReservationID int64     `json:"reservation_id"`
	ItemID        int64     `json:"item_id"`
	ActorID       int64     `json:"actor_id"`
	FromStatus    Status    `json:"from_status,omitempty"`
	ToStatus      Status    `json:"to_status"`
	Quantity      int       `json:"quantity"`
	ReservedDelta int       `json:"reserved_delta"`
	At            time.Time `json:"at"`
}
