package expensestore_test

import (
	"errors"
	"testing"
	"time"

	expensestore "github.com/sheltrhq/sheltr/internal/app/store/expenses"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"github.com/sheltrhq/sheltr/internal/testutil"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newStore(t *testing.T) (*expensestore.Store, *testutil.Fixtures) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	store := expensestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	return store, testutil.NewFixtures(t, db)
}

func TestStore_Create_DecimalRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	day := time.Date(2026, time.October, 3, 0, 0, 0, 0, time.UTC)

	created, err := store.Create(ctx, models.Expense{
		UserID:   userID,
		Amount:   decimal.RequireFromString("145.50"),
		Date:     day,
		Category: " Groceries ",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Source != models.ExpenseSourceManual {
		t.Errorf("Source: got %q", created.Source)
	}

	list, err := store.ListSince(ctx, userID, day.AddDate(0, 0, -2))
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(list))
	}
	if !list[0].Amount.Equal(decimal.RequireFromString("145.5")) {
		t.Errorf("Amount: got %s, want 145.50", list[0].Amount)
	}
	if list[0].Category != "groceries" {
		t.Errorf("Category: got %q", list[0].Category)
	}
}

func TestStore_Create_Invalid(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.Create(ctx, models.Expense{UserID: primitive.NewObjectID(), Amount: decimal.NewFromInt(-5), Date: time.Now()})
	if !errors.Is(err, expensestore.ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
	_, err = store.Create(ctx, models.Expense{UserID: primitive.NewObjectID(), Amount: decimal.NewFromInt(5)})
	if !errors.Is(err, expensestore.ErrDateRequired) {
		t.Errorf("expected ErrDateRequired, got %v", err)
	}
}

func TestStore_ListSince_ExcludesEarlier(t *testing.T) {
	store, fixtures := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	monthStart := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	fixtures.CreateExpense(ctx, userID, "80.00", monthStart.Add(-time.Second))
	fixtures.CreateExpense(ctx, userID, "20.25", monthStart)

	list, err := store.ListSince(ctx, userID, monthStart)
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(list) != 1 || !list[0].Amount.Equal(decimal.RequireFromString("20.25")) {
		t.Errorf("ListSince: got %+v", list)
	}
}

func TestStore_UpsertExternal_Dedup(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	e := models.Expense{
		UserID:      userID,
		ExternalID:  "txn_1",
		Amount:      decimal.RequireFromString("12.00"),
		Date:        time.Date(2026, time.October, 10, 0, 0, 0, 0, time.UTC),
		Description: "Hardware store",
	}

	changed, err := store.UpsertExternal(ctx, e)
	if err != nil || !changed {
		t.Fatalf("first upsert: changed=%v err=%v", changed, err)
	}
	first, err := store.GetByExternalID(ctx, userID, "txn_1")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}

	changed, err = store.UpsertExternal(ctx, e)
	if err != nil {
		t.Fatalf("replay upsert failed: %v", err)
	}
	if changed {
		t.Error("replay of an unchanged transaction reported a change")
	}
	replayed, err := store.GetByExternalID(ctx, userID, "txn_1")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if !replayed.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("replay moved updated_at from %v to %v", first.UpdatedAt, replayed.UpdatedAt)
	}

	e.Amount = decimal.RequireFromString("13.50")
	changed, err = store.UpsertExternal(ctx, e)
	if err != nil || !changed {
		t.Fatalf("modify upsert: changed=%v err=%v", changed, err)
	}

	e.Category = "repairs"
	changed, err = store.UpsertExternal(ctx, e)
	if err != nil || !changed {
		t.Fatalf("category upsert: changed=%v err=%v", changed, err)
	}

	got, err := store.GetByExternalID(ctx, userID, "txn_1")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if !got.Amount.Equal(decimal.RequireFromString("13.50")) {
		t.Errorf("Amount: got %s, want 13.50", got.Amount)
	}
	if got.Source != models.ExpenseSourceBank {
		t.Errorf("Source: got %q, want bank", got.Source)
	}

	list, err := store.ListSince(ctx, userID, time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected exactly one row after replays, got %d", len(list))
	}
}

func TestStore_DeleteExternal(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	for _, id := range []string{"a", "b"} {
		_, err := store.UpsertExternal(ctx, models.Expense{
			UserID: userID, ExternalID: id, Amount: decimal.NewFromInt(1), Date: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("UpsertExternal failed: %v", err)
		}
	}

	n, err := store.DeleteExternal(ctx, userID, []string{"a", "missing"})
	if err != nil {
		t.Fatalf("DeleteExternal failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted: got %d, want 1", n)
	}
	if _, err := store.GetByExternalID(ctx, userID, "a"); !errors.Is(err, expensestore.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_Update(t *testing.T) {
	store, fixtures := newStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	e := fixtures.CreateExpense(ctx, userID, "10.00", time.Now().UTC())

	amt := decimal.RequireFromString("11.11")
	updated, err := store.Update(ctx, userID, e.ID, expensestore.Update{Amount: &amt})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.Amount.Equal(amt) {
		t.Errorf("Amount: got %s", updated.Amount)
	}

	if _, err := store.Update(ctx, primitive.NewObjectID(), e.ID, expensestore.Update{Amount: &amt}); !errors.Is(err, expensestore.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other owner, got %v", err)
	}
}
