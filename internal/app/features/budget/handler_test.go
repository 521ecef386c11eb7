package budget_test

import (
	"encoding/json"
	"net/http"
	"testing"

	budgetfeature "github.com/sheltrhq/sheltr/internal/app/features/budget"
	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	settingsstore "github.com/sheltrhq/sheltr/internal/app/store/settings"
	"github.com/sheltrhq/sheltr/internal/app/system/budget"
	"github.com/sheltrhq/sheltr/internal/testutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newHandler(t *testing.T) *budgetfeature.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	store := budget.New(settingsstore.New(db))
	return budgetfeature.NewHandler(store, nil, uierrors.NewErrorLogger(logger), logger)
}

func readBudget(t *testing.T, rec *testutil.ResponseRecorder) decimal.Decimal {
	t.Helper()
	var body struct {
		Budget decimal.Decimal `json:"budget"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v (body %s)", err, rec.Body.String())
	}
	return body.Budget
}

func TestServeBudget_DefaultsToZero(t *testing.T) {
	h := newHandler(t)
	user := testutil.NewTestUser()

	rec := testutil.NewRecorder()
	h.ServeBudget(rec, testutil.NewAuthenticatedRequest("GET", "/budget", user))
	rec.AssertStatus(t, http.StatusOK)
	if v := readBudget(t, rec); !v.IsZero() {
		t.Errorf("expected 0, got %s", v)
	}
}

func TestHandleSet_PublishesToSubscribers(t *testing.T) {
	h := newHandler(t)
	user := testutil.NewTestUser()

	ch, cancel := h.Budgets.Subscribe(user.ObjectID())
	defer cancel()

	rec := testutil.NewRecorder()
	h.HandleSet(rec, testutil.WithUser(testutil.NewJSONRequest("PUT", "/budget", `{"budget":"1500.00"}`), user))
	rec.AssertStatus(t, http.StatusOK)

	select {
	case v := <-ch:
		if !v.Equal(decimal.NewFromInt(1500)) {
			t.Errorf("subscriber got %s, want 1500", v)
		}
	default:
		t.Fatal("expected the subscriber to receive the new budget")
	}

	rec = testutil.NewRecorder()
	h.ServeBudget(rec, testutil.NewAuthenticatedRequest("GET", "/budget", user))
	if v := readBudget(t, rec); !v.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("GET after PUT: got %s", v)
	}
}

func TestHandleSet_Validation(t *testing.T) {
	h := newHandler(t)
	user := testutil.NewTestUser()

	for _, body := range []string{`{}`, `{"budget":"-5"}`, `{"budget":"lots"}`, `{"budget":1.234}`} {
		rec := testutil.NewRecorder()
		h.HandleSet(rec, testutil.WithUser(testutil.NewJSONRequest("PUT", "/budget", body), user))
		rec.AssertStatus(t, http.StatusBadRequest)
	}
}

func TestHandleSet_Unauthenticated(t *testing.T) {
	h := newHandler(t)

	rec := testutil.NewRecorder()
	h.HandleSet(rec, testutil.NewJSONRequest("PUT", "/budget", `{"budget":"1"}`))
	rec.AssertStatus(t, http.StatusUnauthorized)
}
