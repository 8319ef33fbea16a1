package reservation

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leenbank/leenbank/internal/db"
	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/policy"
	"github.com/leenbank/leenbank/internal/store"
)

type fixture struct {
	db      *sql.DB
	engine  *Engine
	admin   policy.Actor
	student policy.Actor
	other   policy.Actor
}

func newFixture(t *testing.T, database *sql.DB) *fixture {
	t.Helper()
	ctx := context.Background()

	admin, err := store.CreateUser(ctx, database, "admin", "hash", model.RoleAdmin, "")
	require.NoError(t, err)
	student, err := store.CreateUser(ctx, database, "student", "hash", model.RoleStudent, "123456@vistacollege.nl")
	require.NoError(t, err)
	other, err := store.CreateUser(ctx, database, "other", "hash", model.RoleStudent, "654321@vistacollege.nl")
	require.NoError(t, err)

	return &fixture{
		db:      database,
		engine:  NewEngine(database),
		admin:   policy.Actor{UserID: admin.ID, Role: admin.Role},
		student: policy.Actor{UserID: student.ID, Role: student.Role},
		other:   policy.Actor{UserID: other.ID, Role: other.Role},
	}
}

func (f *fixture) item(t *testing.T, quantity int) *model.Item {
	t.Helper()
	item, err := store.CreateItem(context.Background(), f.db, model.ItemInput{
		Name:     model.Localized{EN: "Laptop", NL: "Laptop"},
		Location: model.LocationHeerlen,
		Quantity: quantity,
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) reserved(t *testing.T, itemID int64) int {
	t.Helper()
	item, err := store.GetItem(context.Background(), f.db, itemID)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item.Reserved
}

func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	drifts, err := store.Reconcile(context.Background(), f.db)
	require.NoError(t, err)
	assert.Empty(t, drifts, "reserved counters drifted")

	stock, err := store.ListStock(context.Background(), f.db)
	require.NoError(t, err)
	for _, l := range stock {
		assert.GreaterOrEqual(t, l.Reserved, 0, "item %d", l.ItemID)
		assert.LessOrEqual(t, l.Reserved, l.Quantity, "item %d", l.ItemID)
	}
}

func TestCreateHoldsStock(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 5)

	r, err := f.engine.Create(ctx, f.student, item.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Equal(t, 2, r.Quantity)
	assert.Equal(t, f.student.UserID, r.UserID)
	assert.Equal(t, 2, f.reserved(t, item.ID))
	f.assertConsistent(t)
}

func TestCreateDefaultsToOneUnit(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	item := f.item(t, 5)

	r, err := f.engine.Create(context.Background(), f.student, item.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Quantity)
	assert.Equal(t, 1, f.reserved(t, item.ID))
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 2)

	_, err := f.engine.Create(ctx, f.student, item.ID, 3)
	assert.ErrorIs(t, err, model.ErrInsufficientStock)

	_, err = f.engine.Create(ctx, f.student, 999, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.engine.Create(ctx, f.admin, item.ID, 1)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.engine.Create(ctx, f.student, item.ID, -1)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	// Nothing above may have touched the counter.
	assert.Equal(t, 0, f.reserved(t, item.ID))
}

func TestCreateByDeletedUser(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 3)

	require.NoError(t, store.DeleteUser(ctx, f.db, f.other.UserID))

	_, err := f.engine.Create(ctx, f.other, item.ID, 2)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
	assert.Equal(t, 0, f.reserved(t, item.ID))

	list, err := store.ListItemReservations(ctx, f.db, item.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPendingReservationsConsumeAvailability(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 3)

	_, err := f.engine.Create(ctx, f.student, item.ID, 2)
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, f.other, item.ID, 2)
	assert.ErrorIs(t, err, model.ErrInsufficientStock)

	_, err = f.engine.Create(ctx, f.other, item.ID, 1)
	assert.NoError(t, err)
	assert.Equal(t, 3, f.reserved(t, item.ID))
}

func TestRejectReleasesHold(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 5)

	r, err := f.engine.Create(ctx, f.student, item.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, f.reserved(t, item.ID))

	r, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusRejected})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, r.Status)
	assert.Equal(t, 0, f.reserved(t, item.ID))
	f.assertConsistent(t)
}

func TestReturnFlow(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 3)

	r, err := f.engine.Create(ctx, f.student, item.ID, 3)
	require.NoError(t, err)

	r, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, r.Status)
	assert.Equal(t, 3, f.reserved(t, item.ID))

	r, err = f.engine.Update(ctx, f.student, r.ID, Patch{Status: model.StatusReturnPending})
	require.NoError(t, err)
	assert.Equal(t, model.StatusReturnPending, r.Status)
	assert.Equal(t, 3, f.reserved(t, item.ID))

	r, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusReturned})
	require.NoError(t, err)
	assert.Equal(t, model.StatusReturned, r.Status)
	assert.Equal(t, 0, f.reserved(t, item.ID))

	r, err = f.engine.Archive(ctx, f.admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, r.Status)
	assert.Equal(t, 0, f.reserved(t, item.ID))
	f.assertConsistent(t)
}

func TestRejectedReturnKeepsHold(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 4)

	r, err := f.engine.Create(ctx, f.student, item.ID, 2)
	require.NoError(t, err)
	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusApproved})
	require.NoError(t, err)
	_, err = f.engine.Update(ctx, f.student, r.ID, Patch{Status: model.StatusReturnPending})
	require.NoError(t, err)

	r, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, r.Status)
	assert.Equal(t, 2, f.reserved(t, item.ID))
}

func TestArchiveRequiresReturned(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 4)

	r, err := f.engine.Create(ctx, f.student, item.ID, 1)
	require.NoError(t, err)

	_, err = f.engine.Archive(ctx, f.admin, r.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusApproved})
	require.NoError(t, err)

	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusArchived})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := store.GetReservation(ctx, f.db, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
}

func TestStudentTransitions(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 4)

	r, err := f.engine.Create(ctx, f.student, item.ID, 1)
	require.NoError(t, err)

	// Owners cannot approve their own request.
	_, err = f.engine.Update(ctx, f.student, r.ID, Patch{Status: model.StatusApproved})
	assert.ErrorIs(t, err, model.ErrForbidden)

	// A return can only be requested once approved.
	_, err = f.engine.Update(ctx, f.student, r.ID, Patch{Status: model.StatusReturnPending})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusApproved})
	require.NoError(t, err)

	// Another student may not touch it at all.
	for _, s := range []model.Status{
		model.StatusPending, model.StatusApproved, model.StatusRejected,
		model.StatusReturnPending, model.StatusReturned, model.StatusArchived,
	} {
		_, err = f.engine.Update(ctx, f.other, r.ID, Patch{Status: s})
		assert.ErrorIs(t, err, model.ErrForbidden, "status %s", s)
	}

	_, err = f.engine.Update(ctx, f.student, r.ID, Patch{Status: model.StatusReturnPending})
	require.NoError(t, err)

	// Signing off the return is the admin's job.
	_, err = f.engine.Update(ctx, f.student, r.ID, Patch{Status: model.StatusReturned})
	assert.ErrorIs(t, err, model.ErrForbidden)
	assert.Equal(t, 1, f.reserved(t, item.ID))
}

func TestUpdateErrors(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()

	_, err := f.engine.Update(ctx, f.admin, 42, Patch{Status: model.StatusApproved})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.engine.Update(ctx, f.admin, 42, Patch{Status: "LOST"})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	item := f.item(t, 2)
	r, err := f.engine.Create(ctx, f.student, item.ID, 1)
	require.NoError(t, err)

	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusPending})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestUpdateQuantity(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 5)

	r, err := f.engine.Create(ctx, f.student, item.ID, 2)
	require.NoError(t, err)

	four := 4
	r, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusApproved, Quantity: &four})
	require.NoError(t, err)
	assert.Equal(t, 4, r.Quantity)
	assert.Equal(t, 4, f.reserved(t, item.ID))

	six := 6
	_, err = f.engine.Update(ctx, f.student, r.ID, Patch{Status: model.StatusReturnPending, Quantity: &six})
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusReturnPending, Quantity: &six})
	assert.ErrorIs(t, err, model.ErrInsufficientStock)

	// The failed transaction left everything as it was.
	got, err := store.GetReservation(ctx, f.db, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, 4, f.reserved(t, item.ID))
	f.assertConsistent(t)
}

func TestUpdateDeletedItem(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 5)

	r, err := f.engine.Create(ctx, f.student, item.ID, 1)
	require.NoError(t, err)
	require.NoError(t, store.DeleteItem(ctx, f.db, item.ID))

	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusApproved})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeletePendingReleasesExactQuantity(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 10)

	keep, err := f.engine.Create(ctx, f.other, item.ID, 4)
	require.NoError(t, err)
	r, err := f.engine.Create(ctx, f.student, item.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, f.reserved(t, item.ID))

	deleted, err := f.engine.Delete(ctx, f.student, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, deleted.ID)
	assert.Equal(t, 4, f.reserved(t, item.ID))

	_, err = f.engine.Delete(ctx, f.student, r.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 4, f.reserved(t, item.ID))

	got, err := store.GetReservation(ctx, f.db, keep.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	f.assertConsistent(t)
}

func TestDeleteReleasedDoesNotDoubleRelease(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 5)

	held, err := f.engine.Create(ctx, f.other, item.ID, 2)
	require.NoError(t, err)
	r, err := f.engine.Create(ctx, f.student, item.ID, 3)
	require.NoError(t, err)
	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusRejected})
	require.NoError(t, err)
	assert.Equal(t, 2, f.reserved(t, item.ID))

	_, err = f.engine.Delete(ctx, f.admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.reserved(t, item.ID))

	_, err = f.engine.Delete(ctx, f.admin, held.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.reserved(t, item.ID))
	f.assertConsistent(t)
}

func TestDeletePolicy(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 5)

	r, err := f.engine.Create(ctx, f.student, item.ID, 1)
	require.NoError(t, err)

	_, err = f.engine.Delete(ctx, f.other, r.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusApproved})
	require.NoError(t, err)

	// Approved reservations are returned, not cancelled.
	_, err = f.engine.Delete(ctx, f.student, r.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.engine.Delete(ctx, f.admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.reserved(t, item.ID))
}

func TestDeleteWithDeletedItem(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 5)

	r, err := f.engine.Create(ctx, f.student, item.ID, 2)
	require.NoError(t, err)
	require.NoError(t, store.DeleteItem(ctx, f.db, item.ID))

	_, err = f.engine.Delete(ctx, f.student, r.ID)
	assert.NoError(t, err)
}

func TestEventsRecorded(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	item := f.item(t, 5)

	r, err := f.engine.Create(ctx, f.student, item.ID, 2)
	require.NoError(t, err)
	_, err = f.engine.Update(ctx, f.admin, r.ID, Patch{Status: model.StatusRejected})
	require.NoError(t, err)
	_, err = f.engine.Delete(ctx, f.admin, r.ID)
	require.NoError(t, err)

	events, err := store.ListEvents(ctx, f.db, 0, r.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest first.
	assert.Equal(t, model.EventDeleted, events[0].ToStatus)
	assert.Equal(t, 0, events[0].ReservedDelta)
	assert.Equal(t, model.StatusRejected, events[1].ToStatus)
	assert.Equal(t, -2, events[1].ReservedDelta)
	assert.Equal(t, f.admin.UserID, events[1].ActorID)
	assert.Equal(t, model.StatusPending, events[2].ToStatus)
	assert.Equal(t, 2, events[2].ReservedDelta)
}

func TestConcurrentCreateLastUnit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.sqlite3")
	database, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.EnsureSchema(database))

	f := newFixture(t, database)
	item := f.item(t, 1)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := range callers {
		actor := f.student
		if i%2 == 1 {
			actor = f.other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = f.engine.Create(context.Background(), actor, item.ID, 1)
		}()
	}
	close(start)
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrInsufficientStock):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, insufficient)
	assert.Equal(t, 1, f.reserved(t, item.ID))
	f.assertConsistent(t)
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	f := newFixture(t, db.NewTestDB(t))
	ctx := context.Background()
	items := []*model.Item{f.item(t, 3), f.item(t, 5), f.item(t, 1)}
	actors := []policy.Actor{f.admin, f.student, f.other}
	statuses := []model.Status{
		model.StatusPending, model.StatusApproved, model.StatusRejected,
		model.StatusReturnPending, model.StatusReturned, model.StatusArchived,
	}

	rng := rand.New(rand.NewSource(1))
	var ids []int64
	for range 400 {
		actor := actors[rng.Intn(len(actors))]
		switch op := rng.Intn(4); {
		case op == 0 || len(ids) == 0:
			item := items[rng.Intn(len(items))]
			r, err := f.engine.Create(ctx, actor, item.ID, 1+rng.Intn(3))
			if err == nil {
				ids = append(ids, r.ID)
			}
		case op == 3:
			_, _ = f.engine.Delete(ctx, actor, ids[rng.Intn(len(ids))])
		default:
			p := Patch{Status: statuses[rng.Intn(len(statuses))]}
			if rng.Intn(5) == 0 {
				q := 1 + rng.Intn(4)
				p.Quantity = &q
			}
			_, _ = f.engine.Update(ctx, actor, ids[rng.Intn(len(ids))], p)
		}
	}

	f.assertConsistent(t)
}
