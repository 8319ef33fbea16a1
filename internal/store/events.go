package store

import (
	"context"
	"fmt"

	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/model"
)

// AppendEvent records a reservation change.
func AppendEvent(ctx context.Context, conn db.DBTX, ev model.ReservationEvent) error {
	_, err := conn.ExecContext(ctx,
		`INSERT INTO reservation_events
		     (reservation_id, item_id, actor_id, from_status, to_status, quantity, reserved_delta)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ReservationID, ev.ItemID, ev.ActorID, ev.FromStatus, ev.ToStatus, ev.Quantity, ev.ReservedDelta,
	)
	if err != nil {
		return fmt.Errorf("recording reservation event: %w", err)
	}
	return nil
}

// ListEvents returns reservation events, newest first, optionally filtered by
// item or reservation.
func ListEvents(ctx context.Context, conn db.DBTX, itemID, reservationID int64) ([]model.ReservationEvent, error) {
	query := `SELECT id, reservation_id, item_id, actor_id, from_status, to_status,
	                 quantity, reserved_delta, at
	          FROM reservation_events
	          WHERE 1=1`
	var args []any

	if itemID > 0 {
		query += ` AND item_id = ?`
		args = append(args, itemID)
	}
	if reservationID > 0 {
		query += ` AND reservation_id = ?`
		args = append(args, reservationID)
	}

	query += ` ORDER BY id DESC`

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservation events: %w", err)
	}
	defer rows.Close()

	var events []model.ReservationEvent
	for rows.Next() {
		var ev model.ReservationEvent
		if err := rows.Scan(&ev.ID, &ev.ReservationID, &ev.ItemID, &ev.ActorID, &ev.FromStatus, &ev.ToStatus,
			&ev.Quantity, &ev.ReservedDelta, &ev.At); err != nil {
			return nil, fmt.Errorf("scanning reservation event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
