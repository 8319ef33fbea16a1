package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leenbank/leenbank/internal/model"
)

func newItem(t *testing.T, conn *sql.DB, en, nl, location string, quantity int) *model.Item {
	t.Helper()
	item, err := CreateItem(context.Background(), conn, model.ItemInput{
		Name:     model.Localized{EN: en, NL: nl},
		Location: location,
		Quantity: quantity,
	})
	require.NoError(t, err)
	return item
}

func newStudent(t *testing.T, conn *sql.DB, username, email string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), conn, username, "hash", model.RoleStudent, email)
	require.NoError(t, err)
	return u
}
