package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/model"
)

// ListStock returns the counters of every item.
func ListStock(ctx context.Context, conn db.DBTX) ([]model.StockLine, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT id, name_en, name_nl, location, quantity, reserved
		 FROM items
		 ORDER BY location, name_en, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stock: %w", err)
	}
	defer rows.Close()

	var lines []model.StockLine
	for rows.Next() {
		var l model.StockLine
		if err := rows.Scan(&l.ItemID, &l.Name.EN, &l.Name.NL, &l.Location, &l.Quantity, &l.Reserved); err != nil {
			return nil, fmt.Errorf("scanning stock: %w", err)
		}
		l.Available = l.Quantity - l.Reserved
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Reconcile compares each item's reserved counter with the sum of quantities
// of its held reservations and returns the items that disagree.
func Reconcile(ctx context.Context, conn db.DBTX) ([]model.Drift, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT i.id, i.reserved, COALESCE(SUM(r.quantity), 0) AS computed
		 FROM items i
		 LEFT JOIN reservations r
		        ON r.item_id = i.id AND r.status IN (?, ?, ?)
		 GROUP BY i.id, i.reserved
		 HAVING i.reserved <> COALESCE(SUM(r.quantity), 0)
		 ORDER BY i.id`,
		model.HeldStatuses[0], model.HeldStatuses[1], model.HeldStatuses[2],
	)
	if err != nil {
		return nil, fmt.Errorf("reconciling reserved counters: %w", err)
	}
	defer rows.Close()

	var drifts []model.Drift
	for rows.Next() {
		var d model.Drift
		if err := rows.Scan(&d.ItemID, &d.Cached, &d.Computed); err != nil {
			return nil, fmt.Errorf("scanning drift: %w", err)
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// RepairDrift resets every drifting counter to the computed sum, capped at the
// item's quantity, and returns what it changed.
func RepairDrift(ctx context.Context, database *sql.DB) ([]model.Drift, error) {
	var repaired []model.Drift
	err := db.RunInTx(ctx, database, func(tx db.DBTX) error {
		drifts, err := Reconcile(ctx, tx)
		if err != nil {
			return err
		}

		for _, d := range drifts {
			_, err := tx.ExecContext(ctx,
				`UPDATE items SET reserved = MIN(?, quantity), updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
				d.Computed, d.ItemID,
			)
			if err != nil {
				return fmt.Errorf("repairing item %d: %w", d.ItemID, err)
			}
		}
		repaired = drifts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repaired, nil
}
