package banking_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/features/banking"
	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	banklinkstore "github.com/sheltrhq/sheltr/internal/app/store/banklinks"
	"github.com/sheltrhq/sheltr/internal/app/system/banksync"
	"github.com/sheltrhq/sheltr/internal/app/system/ratelimit"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"github.com/sheltrhq/sheltr/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeSyncer struct {
	res   banksync.Result
	err   error
	calls []primitive.ObjectID
}

func (f *fakeSyncer) Sync(_ context.Context, id primitive.ObjectID) (banksync.Result, error) {
	f.calls = append(f.calls, id)
	return f.res, f.err
}

func newHandler(t *testing.T, syncer banking.Syncer) *banking.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	return banking.NewHandler(db, syncer, nil, uierrors.NewErrorLogger(logger), logger)
}

func createLink(t *testing.T, h *banking.Handler, user testutil.TestUser) models.BankLink {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()
	link, err := h.Links.Create(ctx, user.ObjectID(), "First Bank", "access-sandbox-123")
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	return link
}

func syncReq(h *banking.Handler, user testutil.TestUser, id string) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	req := testutil.NewAuthenticatedRequest("POST", "/banking/links/"+id+"/sync", user)
	h.HandleSync(rec, testutil.WithChiURLParam(req, "id", id))
	return rec
}

func TestHandleCreate_HidesAccessToken(t *testing.T) {
	h := newHandler(t, nil)
	user := testutil.NewTestUser()

	rec := testutil.NewRecorder()
	body := `{"institution":"<em>First</em> Bank","access_token":"access-sandbox-secret"}`
	h.HandleCreate(rec, testutil.WithUser(testutil.NewJSONRequest("POST", "/banking/links", body), user))
	rec.AssertStatus(t, http.StatusCreated)

	if strings.Contains(rec.Body.String(), "access-sandbox-secret") {
		t.Error("access token leaked in response")
	}
	var link models.BankLink
	if err := json.Unmarshal(rec.Body.Bytes(), &link); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if link.Institution != "First Bank" || link.SyncStatus != models.BankSyncNever {
		t.Errorf("unexpected link: %+v", link)
	}
}

func TestHandleCreate_Validation(t *testing.T) {
	h := newHandler(t, nil)
	user := testutil.NewTestUser()

	for _, body := range []string{`{"institution":"Bank"}`, `{"access_token":"tok"}`, `{}`} {
		rec := testutil.NewRecorder()
		h.HandleCreate(rec, testutil.WithUser(testutil.NewJSONRequest("POST", "/banking/links", body), user))
		rec.AssertStatus(t, http.StatusBadRequest)
	}
}

func TestServeList_OwnLinksOnly(t *testing.T) {
	h := newHandler(t, nil)
	user := testutil.NewTestUser()
	other := testutil.NewTestUser()

	createLink(t, h, user)
	createLink(t, h, other)

	rec := testutil.NewRecorder()
	h.ServeList(rec, testutil.NewAuthenticatedRequest("GET", "/banking/links", user))
	rec.AssertStatus(t, http.StatusOK)

	var body struct {
		Links []models.BankLink `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Links) != 1 || body.Links[0].UserID != user.ObjectID() {
		t.Errorf("expected one link for the user, got %+v", body.Links)
	}
}

func TestHandleSync(t *testing.T) {
	syncer := &fakeSyncer{res: banksync.Result{Pages: 2, Upserted: 5, Removed: 1}}
	h := newHandler(t, syncer)
	user := testutil.NewTestUser()
	link := createLink(t, h, user)

	rec := syncReq(h, user, link.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)

	var res banksync.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Upserted != 5 || res.Removed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(syncer.calls) != 1 || syncer.calls[0] != link.ID {
		t.Errorf("expected one sync of %s, got %v", link.ID.Hex(), syncer.calls)
	}
}

func TestHandleSync_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"in progress", banklinkstore.ErrSyncInProgress, http.StatusConflict},
		{"provider", fmt.Errorf("%w: status 400: bad token", banksync.ErrProvider), http.StatusBadGateway},
		{"other", fmt.Errorf("write expenses: boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, &fakeSyncer{err: tt.err})
			user := testutil.NewTestUser()
			link := createLink(t, h, user)

			syncReq(h, user, link.ID.Hex()).AssertStatus(t, tt.want)
		})
	}
}

func TestHandleSync_OtherUsersLink(t *testing.T) {
	syncer := &fakeSyncer{}
	h := newHandler(t, syncer)
	owner := testutil.NewTestUser()
	other := testutil.NewTestUser()
	link := createLink(t, h, owner)

	syncReq(h, other, link.ID.Hex()).AssertStatus(t, http.StatusNotFound)
	if len(syncer.calls) != 0 {
		t.Error("sync should not run for a link the user does not own")
	}
}

func TestHandleSync_NotConfigured(t *testing.T) {
	h := newHandler(t, nil)
	user := testutil.NewTestUser()
	link := createLink(t, h, user)

	syncReq(h, user, link.ID.Hex()).AssertStatus(t, http.StatusServiceUnavailable)
}

func TestHandleSync_RateLimited(t *testing.T) {
	h := newHandler(t, &fakeSyncer{})
	h.Limiter = ratelimit.New(1, time.Minute)
	user := testutil.NewTestUser()
	link := createLink(t, h, user)

	syncReq(h, user, link.ID.Hex()).AssertStatus(t, http.StatusOK)
	syncReq(h, user, link.ID.Hex()).AssertStatus(t, http.StatusTooManyRequests)
}
