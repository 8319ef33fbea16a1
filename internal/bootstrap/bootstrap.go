// Package bootstrap prepares a fresh database: the first admin account and,
// on request, a small demo catalogue.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leenbank/leenbank/internal/auth"
	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/store"
)

// EnsureAdmin creates an admin account with a random password when the
// database has none. The password is returned only when an account was made.
func EnsureAdmin(ctx context.Context, database *sql.DB, username string) (string, error) {
	users, err := store.ListUsers(ctx, database)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.Role == model.RoleAdmin {
			return "", nil
		}
	}

	password, err := auth.RandomPassword()
	if err != nil {
		return "", err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}
	if _, err := store.CreateUser(ctx, database, username, hash, model.RoleAdmin, ""); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

// DemoStudent is the username of the seeded student account.
const DemoStudent = "student"

// Demo reports what SeedDemo added.
type Demo struct {
	StudentPassword string
	Items           int
}

var demoItems = []model.ItemInput{
	{
		Name:        model.Localized{EN: "Laptop", NL: "Laptop"},
		Description: model.Localized{EN: "High-performance laptop for programming and design work", NL: "Krachtige laptop voor programmeren en ontwerpwerk"},
		Location:    model.LocationHeerlen,
		Quantity:    5,
	},
	{
		Name:        model.Localized{EN: "Projector", NL: "Beamer"},
		Description: model.Localized{EN: "HD projector for presentations and lectures", NL: "HD-beamer voor presentaties en lezingen"},
		Location:    model.LocationMaastricht,
		Quantity:    3,
	},
	{
		Name:        model.Localized{EN: "Microscope", NL: "Microscoop"},
		Description: model.Localized{EN: "Digital microscope for laboratory work", NL: "Digitale microscoop voor laboratoriumwerk"},
		Location:    model.LocationSittard,
		Quantity:    4,
	},
	{
		Name:        model.Localized{EN: "Tablet", NL: "Tablet"},
		Description: model.Localized{EN: "Portable tablet for mobile learning and presentations", NL: "Draagbare tablet voor mobiel leren en presentaties"},
		Location:    model.LocationHeerlen,
		Quantity:    10,
	},
	{
		Name:        model.Localized{EN: "Camera", NL: "Camera"},
		Description: model.Localized{EN: "Professional DSLR camera for photography courses", NL: "Professionele spiegelreflexcamera voor fotografiecursussen"},
		Location:    model.LocationMaastricht,
		Quantity:    2,
	},
}

// SeedDemo adds a student account and five items. It does nothing to a
// catalogue that already has items, and keeps an existing student account.
func SeedDemo(ctx context.Context, database *sql.DB, emailDomain string) (*Demo, error) {
	demo := &Demo{}

	err := db.RunInTx(ctx, database, func(tx db.DBTX) error {
		items, err := store.ListItems(ctx, tx, "")
		if err != nil {
			return err
		}
		if len(items) > 0 {
			return nil
		}

		existing, err := store.GetUserByUsername(ctx, tx, DemoStudent)
		if err != nil {
			return err
		}
		if existing == nil {
			password, err := auth.RandomPassword()
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			if _, err := store.CreateUser(ctx, tx, DemoStudent, hash, model.RoleStudent, "123456@"+emailDomain); err != nil {
				return fmt.Errorf("creating demo student: %w", err)
			}
			demo.StudentPassword = password
		}

		for _, in := range demoItems {
			if _, err := store.CreateItem(ctx, tx, in); err != nil {
				return err
			}
			demo.Items++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seeding demo data: %w", err)
	}
	return demo, nil
}
