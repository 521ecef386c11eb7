package errors_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/sheltrhq/sheltr/internal/testutil"
	"go.uber.org/zap"
)

func TestLogServerError_HidesInternalError(t *testing.T) {
	el := uierrors.NewErrorLogger(zap.NewNop())
	rec := testutil.NewRecorder()
	req := testutil.NewAuthenticatedRequest("GET", "/tasks", testutil.NewTestUser())

	el.LogServerError(rec, req, "find tasks failed", errTest("connection reset"), "A database error occurred.")

	rec.AssertStatus(t, http.StatusInternalServerError)
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("internal error leaked into response")
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "A database error occurred." {
		t.Errorf("error: got %q", body["error"])
	}
}

func TestDecodeJSON_RequiresJSONContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		wantErr     bool
	}{
		{"json", "application/json", false},
		{"json with charset", "application/json; charset=utf-8", false},
		{"form text/plain", "text/plain", true},
		{"urlencoded form", "application/x-www-form-urlencoded", true},
		{"missing", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewJSONRequest("POST", "/tasks", `{"title":"Fix roof"}`)
			if tt.contentType == "" {
				req.Header.Del("Content-Type")
			} else {
				req.Header.Set("Content-Type", tt.contentType)
			}
			var p struct {
				Title string `json:"title"`
			}
			err := uierrors.DecodeJSON(testutil.NewRecorder(), req, &p)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeJSON: err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"title":"Fix roof"}`},
		{name: "empty", body: "", wantErr: "empty"},
		{name: "unknown field", body: `{"title":"x","owner":"y"}`, wantErr: "invalid JSON"},
		{name: "too large", body: `{"title":"` + strings.Repeat("a", 70<<10) + `"}`, wantErr: "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewJSONRequest("POST", "/tasks", tt.body)
			rec := testutil.NewRecorder()
			var p payload
			err := uierrors.DecodeJSON(rec, req, &p)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Title != "Fix roof" {
					t.Errorf("title: got %q", p.Title)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error: got %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
