package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leenbank/leenbank/internal/auth"
	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/store"
)

func TestEnsureAdmin(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	password, err := EnsureAdmin(ctx, database, "Beheer")
	require.NoError(t, err)
	require.NotEmpty(t, password)

	u, err := store.GetUserByUsername(ctx, database, "beheer")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.True(t, auth.CheckPassword(u.PasswordHash, password))

	again, err := EnsureAdmin(ctx, database, "other")
	require.NoError(t, err)
	assert.Empty(t, again, "an existing admin is kept")

	users, err := store.ListUsers(ctx, database)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestSeedDemo(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	demo, err := SeedDemo(ctx, database, "school.test")
	require.NoError(t, err)
	assert.Equal(t, 5, demo.Items)
	assert.NotEmpty(t, demo.StudentPassword)

	student, err := store.GetUserByUsername(ctx, database, DemoStudent)
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Equal(t, "123456@school.test", student.Email)
	assert.NoError(t, model.NewEmailPolicy("school.test").Validate(student.Role, student.Email))

	items, err := store.ListItems(ctx, database, "")
	require.NoError(t, err)
	require.Len(t, items, 5)
	locations := map[string]bool{}
	for _, item := range items {
		locations[item.Location] = true
		assert.NotEmpty(t, item.Name.NL)
		assert.Zero(t, item.Reserved)
	}
	assert.Len(t, locations, 3)

	again, err := SeedDemo(ctx, database, "school.test")
	require.NoError(t, err)
	assert.Zero(t, again.Items)
	assert.Empty(t, again.StudentPassword)
}
