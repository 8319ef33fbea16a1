package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/model"
)

const itemColumns = `id, name_en, name_nl, description_en, description_nl, location,
	quantity, reserved, image IS NOT NULL, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var hasImage bool
	err := row.Scan(&item.ID, &item.Name.EN, &item.Name.NL, &item.Description.EN, &item.Description.NL,
		&item.Location, &item.Quantity, &item.Reserved, &hasImage, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Available = item.Quantity - item.Reserved
	item.ImageRef = model.ItemImageRef(item.ID, hasImage)
	return item, nil
}

// CreateItem creates a new item with nothing reserved.
func CreateItem(ctx context.Context, conn db.DBTX, in model.ItemInput) (*model.Item, error) {
	name := in.Name.Mirror()
	desc := in.Description.Mirror()
	result, err := conn.ExecContext(ctx,
		`INSERT INTO items (name_en, name_nl, description_en, description_nl, location, quantity)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name.EN, name.NL, desc.EN, desc.NL, in.Location, in.Quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, conn, id)
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, conn db.DBTX, id int64) (*model.Item, error) {
	item, err := scanItem(conn.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns all items, optionally filtered by location.
func ListItems(ctx context.Context, conn db.DBTX, location string) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	var args []any
	if location != "" {
		query += ` WHERE location = ?`
		args = append(args, location)
	}
	query += ` ORDER BY name_en, id`

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItem replaces an item's editable fields. The new quantity may not drop
// below what is currently reserved.
func UpdateItem(ctx context.Context, conn db.DBTX, id int64, in model.ItemInput) error {
	name := in.Name.Mirror()
	desc := in.Description.Mirror()
	result, err := conn.ExecContext(ctx,
		`UPDATE items SET name_en = ?, name_nl = ?, description_en = ?, description_nl = ?,
		        location = ?, quantity = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND reserved <= ?`,
		name.EN, name.NL, desc.EN, desc.NL, in.Location, in.Quantity, id, in.Quantity,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	item, err := GetItem(ctx, conn, id)
	if err != nil {
		return err
	}
	if item == nil {
		return model.ErrNotFound
	}
	return model.Invalid("quantity", "cannot be lower than the %d currently reserved", item.Reserved)
}

// DeleteItem removes an item. Its reservations are left in place.
func DeleteItem(ctx context.Context, conn db.DBTX, id int64) error {
	result, err := conn.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// SetItemImage stores an item's image. A nil image clears it.
func SetItemImage(ctx context.Context, conn db.DBTX, id int64, image []byte, mime string) error {
	var imageArg, mimeArg any
	if image != nil {
		imageArg, mimeArg = image, mime
	}
	result, err := conn.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		imageArg, mimeArg, id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// GetItemImage returns an item's image data and MIME type. Data is nil when
// the item or its image is missing.
func GetItemImage(ctx context.Context, conn db.DBTX, id int64) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := conn.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ?`, id,
	).Scan(&image, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime.String, nil
}

// ReserveStock increments an item's reserved counter by qty if that many
// units are still available. The check and the increment are one statement.
func ReserveStock(ctx context.Context, conn db.DBTX, itemID int64, qty int) error {
	result, err := conn.ExecContext(ctx,
		`UPDATE items SET reserved = reserved + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND reserved + ? <= quantity`,
		qty, itemID, qty,
	)
	if err != nil {
		return fmt.Errorf("reserving stock: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE id = ?`, itemID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking item: %w", err)
	}
	if exists == 0 {
		return model.ErrNotFound
	}
	return model.ErrInsufficientStock
}

// ReleaseStock decrements an item's reserved counter by qty, never below zero.
func ReleaseStock(ctx context.Context, conn db.DBTX, itemID int64, qty int) error {
	result, err := conn.ExecContext(ctx,
		`UPDATE items SET reserved = MAX(reserved - ?, 0), updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		qty, itemID,
	)
	if err != nil {
		return fmt.Errorf("releasing stock: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
