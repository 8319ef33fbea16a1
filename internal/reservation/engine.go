// Package reservation implements the reservation lifecycle. Every operation
// runs in a single transaction that moves the reservation and the reserved
// counter of its item together.
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/policy"
	"github.com/leenbank/leenbank/internal/store"
)

// Engine applies reservation commands against the store.
type Engine struct {
	DB *sql.DB
}

// NewEngine returns an Engine backed by database.
func NewEngine(database *sql.DB) *Engine {
	return &Engine{DB: database}
}

// Patch is a requested change to an existing reservation. A nil Quantity
// keeps the current one.
type Patch struct {
	Status   model.Status
	Quantity *int
}

// Create places a PENDING reservation for qty units of an item and holds them
// on the item straight away. A zero qty means one unit.
func (e *Engine) Create(ctx context.Context, actor policy.Actor, itemID int64, qty int) (*model.Reservation, error) {
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, model.Invalid("quantity", "must be at least 1")
	}
	if itemID <= 0 {
		return nil, model.Invalid("item_id", "required")
	}
	if !policy.CanCreate(actor) {
		return nil, fmt.Errorf("creating reservation: %w", model.ErrForbidden)
	}

	var created *model.Reservation
	err := db.RunInTx(ctx, e.DB, func(tx db.DBTX) error {
		owner, err := store.GetUser(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		if owner == nil {
			return fmt.Errorf("user %d no longer exists: %w", actor.UserID, model.ErrUnauthenticated)
		}

		if err := store.ReserveStock(ctx, tx, itemID, qty); err != nil {
			return fmt.Errorf("item %d: %w", itemID, err)
		}

		r, err := store.CreateReservation(ctx, tx, itemID, actor.UserID, qty)
		if err != nil {
			return err
		}

		err = store.AppendEvent(ctx, tx, model.ReservationEvent{
			ReservationID: r.ID,
			ItemID:        itemID,
			ActorID:       actor.UserID,
			FromStatus:    model.EventCreated,
			ToStatus:      r.Status,
			Quantity:      qty,
			ReservedDelta: qty,
		})
		if err != nil {
			return err
		}

		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update moves a reservation to p.Status, adjusting the item's reserved
// counter by the difference between what the reservation held before and
// what it holds afterwards.
func (e *Engine) Update(ctx context.Context, actor policy.Actor, id int64, p Patch) (*model.Reservation, error) {
	if !p.Status.Valid() {
		return nil, model.Invalid("status", "unknown status %q", p.Status)
	}

	var updated *model.Reservation
	err := db.RunInTx(ctx, e.DB, func(tx db.DBTX) error {
		r, err := loadReservation(ctx, tx, id)
		if err != nil {
			return err
		}

		// Strangers learn nothing about the reservation's state.
		if !actor.IsAdmin() && !actor.Owns(r) {
			return fmt.Errorf("reservation %d: %w", id, model.ErrForbidden)
		}

		from, to := r.Status, p.Status
		if !model.CanMove(from, to) {
			return fmt.Errorf("reservation %d from %s to %s: %w", id, from, to, model.ErrInvalidTransition)
		}
		if !policy.CanTransition(actor, r, from, to) {
			return fmt.Errorf("reservation %d from %s to %s: %w", id, from, to, model.ErrForbidden)
		}

		qty := r.Quantity
		if p.Quantity != nil && *p.Quantity != r.Quantity {
			if !policy.CanChangeQuantity(actor) {
				return fmt.Errorf("changing quantity of reservation %d: %w", id, model.ErrForbidden)
			}
			if *p.Quantity < 1 {
				return model.Invalid("quantity", "must be at least 1")
			}
			qty = *p.Quantity
		}

		item, err := store.GetItem(ctx, tx, r.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("item %d of reservation %d: %w", r.ItemID, id, model.ErrNotFound)
		}

		delta := model.HeldQuantity(to, qty) - model.HeldQuantity(from, r.Quantity)
		if err := adjust(ctx, tx, r.ItemID, delta); err != nil {
			return fmt.Errorf("item %d: %w", r.ItemID, err)
		}

		if err := store.UpdateReservation(ctx, tx, id, to, qty); err != nil {
			return err
		}

		err = store.AppendEvent(ctx, tx, model.ReservationEvent{
			ReservationID: id,
			ItemID:        r.ItemID,
			ActorID:       actor.UserID,
			FromStatus:    from,
			ToStatus:      to,
			Quantity:      qty,
			ReservedDelta: delta,
		})
		if err != nil {
			return err
		}

		updated, err = store.GetReservation(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Archive hides a RETURNED reservation from the active listings.
func (e *Engine) Archive(ctx context.Context, actor policy.Actor, id int64) (*model.Reservation, error) {
	return e.Update(ctx, actor, id, Patch{Status: model.StatusArchived})
}

// Delete removes a reservation. A reservation that still holds stock gives it
// back; one that was already released does not release again.
func (e *Engine) Delete(ctx context.Context, actor policy.Actor, id int64) (*model.Reservation, error) {
	var deleted *model.Reservation
	err := db.RunInTx(ctx, e.DB, func(tx db.DBTX) error {
		r, err := loadReservation(ctx, tx, id)
		if err != nil {
			return err
		}

		if !policy.CanDelete(actor, r) {
			return fmt.Errorf("deleting reservation %d: %w", id, model.ErrForbidden)
		}

		held := model.HeldQuantity(r.Status, r.Quantity)
		if held > 0 {
			// The item may be gone already; then there is nothing to release.
			err := store.ReleaseStock(ctx, tx, r.ItemID, held)
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("item %d: %w", r.ItemID, err)
			}
		}

		if err := store.DeleteReservation(ctx, tx, id); err != nil {
			return err
		}

		err = store.AppendEvent(ctx, tx, model.ReservationEvent{
			ReservationID: id,
			ItemID:        r.ItemID,
			ActorID:       actor.UserID,
			FromStatus:    r.Status,
			ToStatus:      model.EventDeleted,
			Quantity:      r.Quantity,
			ReservedDelta: -held,
		})
		if err != nil {
			return err
		}

		deleted = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func loadReservation(ctx context.Context, tx db.DBTX, id int64) (*model.Reservation, error) {
	r, err := store.GetReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("reservation %d: %w", id, model.ErrNotFound)
	}
	return r, nil
}

// adjust applies a signed change to an item's reserved counter. Increments
// are checked against available stock, decrements clamp at zero.
func adjust(ctx context.Context, tx db.DBTX, itemID int64, delta int) error {
	switch {
	case delta > 0:
		return store.ReserveStock(ctx, tx, itemID, delta)
	case delta < 0:
		return store.ReleaseStock(ctx, tx, itemID, -delta)
	}
	return nil
}
