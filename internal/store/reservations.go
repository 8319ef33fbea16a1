package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/model"
)

const reservationColumns = `id, item_id, user_id, quantity, status, reserved_at, updated_at`

func scanReservation(row rowScanner) (*model.Reservation, error) {
	r := &model.Reservation{}
	err := row.Scan(&r.ID, &r.ItemID, &r.UserID, &r.Quantity, &r.Status, &r.ReservedDate, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateReservation inserts a PENDING reservation. It does not touch the
// item's counters; see ReserveStock.
func CreateReservation(ctx context.Context, conn db.DBTX, itemID, userID int64, qty int) (*model.Reservation, error) {
	result, err := conn.ExecContext(ctx,
		`INSERT INTO reservations (item_id, user_id, quantity, status) VALUES (?, ?, ?, ?)`,
		itemID, userID, qty, model.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("creating reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting reservation id: %w", err)
	}

	return GetReservation(ctx, conn, id)
}

// GetReservation returns a reservation by ID, or nil if it does not exist.
func GetReservation(ctx context.Context, conn db.DBTX, id int64) (*model.Reservation, error) {
	r, err := scanReservation(conn.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting reservation: %w", err)
	}
	return r, nil
}

// ListItemReservations returns every reservation of an item, oldest first.
func ListItemReservations(ctx context.Context, conn db.DBTX, itemID int64) ([]model.Reservation, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE item_id = ? ORDER BY id`, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing item reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateReservation sets a reservation's status and quantity.
func UpdateReservation(ctx context.Context, conn db.DBTX, id int64, status model.Status, qty int) error {
	result, err := conn.ExecContext(ctx,
		`UPDATE reservations SET status = ?, quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, qty, id,
	)
	if err != nil {
		return fmt.Errorf("updating reservation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteReservation removes a reservation row.
func DeleteReservation(ctx context.Context, conn db.DBTX, id int64) error {
	result, err := conn.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting reservation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
