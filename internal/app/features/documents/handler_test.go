package documents_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/sheltrhq/sheltr/internal/app/features/documents"
	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/sheltrhq/sheltr/internal/app/system/indexes"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"github.com/sheltrhq/sheltr/internal/testutil"
	"go.uber.org/zap"
)

func newHandler(t *testing.T) (*documents.Handler, *testutil.Fixtures) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	logger := zap.NewNop()
	return documents.NewHandler(db, uierrors.NewErrorLogger(logger), logger), testutil.NewFixtures(t, db)
}

func TestHandleCreate(t *testing.T) {
	h, _ := newHandler(t)
	user := testutil.NewTestUser()

	tests := []struct {
		name     string
		body     string
		want     int
		wantKind string
	}{
		{"default kind", `{"title":"Dishwasher manual"}`, http.StatusCreated, "other"},
		{"explicit kind", `{"title":"Roof warranty","kind":"Warranty"}`, http.StatusCreated, "warranty"},
		{"unknown kind", `{"title":"Deed","kind":"deed"}`, http.StatusBadRequest, ""},
		{"missing title", `{"kind":"manual"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			h.HandleCreate(rec, testutil.WithUser(testutil.NewJSONRequest("POST", "/documents", tt.body), user))
			rec.AssertStatus(t, tt.want)
			if tt.want != http.StatusCreated {
				return
			}
			var doc models.Document
			if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if doc.Kind != tt.wantKind {
				t.Errorf("kind: got %q, want %q", doc.Kind, tt.wantKind)
			}
		})
	}
}

func TestServeList_OnlyOwnDocuments(t *testing.T) {
	h, fx := newHandler(t)
	user := testutil.NewTestUser()
	other := testutil.NewTestUser()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx.CreateDocument(ctx, user.ObjectID(), "Lease")
	fx.CreateDocument(ctx, user.ObjectID(), "Boiler manual")
	fx.CreateDocument(ctx, other.ObjectID(), "Not yours")

	rec := testutil.NewRecorder()
	h.ServeList(rec, testutil.NewAuthenticatedRequest("GET", "/documents", user))
	rec.AssertStatus(t, http.StatusOK)

	var body struct {
		Documents []models.Document `json:"documents"`
		Kinds     []string          `json:"kinds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Documents) != 2 {
		t.Errorf("expected 2 documents, got %d", len(body.Documents))
	}
	if len(body.Kinds) != len(models.DocumentKinds) {
		t.Errorf("expected kinds list, got %v", body.Kinds)
	}
}

func TestHandleDelete(t *testing.T) {
	h, fx := newHandler(t)
	owner := testutil.NewTestUser()
	other := testutil.NewTestUser()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	doc := fx.CreateDocument(ctx, owner.ObjectID(), "Lease")

	del := func(u testutil.TestUser) *testutil.ResponseRecorder {
		rec := testutil.NewRecorder()
		req := testutil.NewAuthenticatedRequest("DELETE", "/documents/"+doc.ID.Hex(), u)
		h.HandleDelete(rec, testutil.WithChiURLParam(req, "id", doc.ID.Hex()))
		return rec
	}

	del(other).AssertStatus(t, http.StatusNotFound)
	del(owner).AssertStatus(t, http.StatusNoContent)
	del(owner).AssertStatus(t, http.StatusNotFound)
}
