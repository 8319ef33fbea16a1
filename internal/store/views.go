package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"

	"github.com/leenbank/leenbank/internal/model"
)

// ViewFilter narrows a reservation listing.
type ViewFilter struct {
	UserID          int64
	ItemID          int64
	Status          model.Status
	IncludeArchived bool
	// Lang picks the language of ItemLabel.
	Lang string
}

type reservationRow struct {
	ID          int64     `db:"id"`
	ItemID      int64     `db:"item_id"`
	NameEN      string    `db:"name_en"`
	NameNL      string    `db:"name_nl"`
	Location    string    `db:"location"`
	UserID      int64     `db:"user_id"`
	StudentName string    `db:"student_name"`
	Quantity    int       `db:"quantity"`
	Status      string    `db:"status"`
	ReservedAt  time.Time `db:"reserved_at"`
}

var dialect = goqu.Dialect("sqlite3")

func reservationViewQuery(f ViewFilter) (string, []any, error) {
	// Inner joins drop reservations whose item or user has been deleted.
	ds := dialect.
		From(goqu.T("reservations").As("r")).
		Join(goqu.T("items").As("i"), goqu.On(goqu.I("i.id").Eq(goqu.I("r.item_id")))).
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("r.user_id")))).
		Select(
			goqu.I("r.id"),
			goqu.I("r.item_id"),
			goqu.I("i.name_en"),
			goqu.I("i.name_nl"),
			goqu.I("i.location"),
			goqu.I("r.user_id"),
			goqu.I("u.username").As("student_name"),
			goqu.I("r.quantity"),
			goqu.I("r.status"),
			goqu.I("r.reserved_at"),
		).
		Order(goqu.I("r.reserved_at").Desc(), goqu.I("r.id").Desc()).
		Prepared(true)

	if !f.IncludeArchived {
		ds = ds.Where(goqu.I("r.status").Neq(string(model.StatusArchived)))
	}
	if f.UserID > 0 {
		ds = ds.Where(goqu.I("r.user_id").Eq(f.UserID))
	}
	if f.ItemID > 0 {
		ds = ds.Where(goqu.I("r.item_id").Eq(f.ItemID))
	}
	if f.Status != "" {
		ds = ds.Where(goqu.I("r.status").Eq(string(f.Status)))
	}

	return ds.ToSQL()
}

// ListReservationViews returns reservations joined with their item and
// student, newest first. ARCHIVED reservations are left out unless the filter
// includes them.
func ListReservationViews(ctx context.Context, database *sql.DB, f ViewFilter) ([]model.ReservationView, error) {
	query, args, err := reservationViewQuery(f)
	if err != nil {
		return nil, fmt.Errorf("building reservation listing: %w", err)
	}

	var rows []reservationRow
	if err := sqlx.NewDb(database, "sqlite").SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}

	views := make([]model.ReservationView, 0, len(rows))
	for _, row := range rows {
		name := model.Localized{EN: row.NameEN, NL: row.NameNL}
		views = append(views, model.ReservationView{
			ID:           row.ID,
			ItemID:       row.ItemID,
			ItemName:     name,
			ItemLabel:    name.Text(f.Lang),
			Location:     row.Location,
			UserID:       row.UserID,
			StudentName:  row.StudentName,
			Quantity:     row.Quantity,
			Status:       model.Status(row.Status),
			ReservedDate: row.ReservedAt,
		})
	}
	return views, nil
}
