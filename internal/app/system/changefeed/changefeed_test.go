package changefeed

import (
	"testing"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/system/bsondecimal"
	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func marshal(t *testing.T, v any) bson.Raw {
	t.Helper()
	b, err := bson.MarshalWithRegistry(bsondecimal.Registry(), v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestDecode_TaskUpdateWithImages(t *testing.T) {
	f := New(nil, zap.NewNop())
	now := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)
	userID := primitive.NewObjectID()
	id := primitive.NewObjectID()

	before := models.Task{ID: id, UserID: userID, Title: "t", UpdatedAt: now.Add(-time.Hour)}
	after := before
	after.Completed = true
	after.UpdatedAt = now

	raw := marshal(t, bson.M{
		"operationType":            "update",
		"ns":                       bson.M{"db": "sheltr", "coll": "tasks"},
		"fullDocument":             after,
		"fullDocumentBeforeChange": before,
	})

	ev, ok, err := f.decode(raw)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if ev.Table != dashmetrics.TableTasks || ev.Op != dashmetrics.OpUpdate {
		t.Errorf("table/op: %v/%v", ev.Table, ev.Op)
	}
	if ev.OldTask == nil || ev.OldTask.Completed {
		t.Errorf("OldTask: %+v", ev.OldTask)
	}
	if ev.NewTask == nil || !ev.NewTask.Completed || ev.NewTask.ID != id.Hex() {
		t.Errorf("NewTask: %+v", ev.NewTask)
	}
}

func TestDecode_ExpenseInsertKeepsDecimal(t *testing.T) {
	f := New(nil, zap.NewNop())
	e := models.Expense{
		ID:     primitive.NewObjectID(),
		UserID: primitive.NewObjectID(),
		Amount: decimal.RequireFromString("145.50"),
		Date:   time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC),
	}

	ev, ok, err := f.decode(marshal(t, bson.M{
		"operationType": "insert",
		"ns":            bson.M{"coll": "expenses"},
		"fullDocument":  e,
	}))
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if ev.OldExpense != nil {
		t.Errorf("insert should carry no pre-image, got %+v", ev.OldExpense)
	}
	if ev.NewExpense == nil || !ev.NewExpense.Amount.Equal(decimal.RequireFromString("145.5")) {
		t.Errorf("NewExpense: %+v", ev.NewExpense)
	}
}

func TestDecode_DocumentDeleteWithoutImage(t *testing.T) {
	f := New(nil, zap.NewNop())

	ev, ok, err := f.decode(marshal(t, bson.M{
		"operationType":            "delete",
		"ns":                       bson.M{"coll": "documents"},
		"fullDocumentBeforeChange": nil,
	}))
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if ev.Table != dashmetrics.TableDocuments || ev.Op != dashmetrics.OpDelete {
		t.Errorf("table/op: %v/%v", ev.Table, ev.Op)
	}
}

func TestDecode_IgnoresOtherEvents(t *testing.T) {
	f := New(nil, zap.NewNop())

	tests := []bson.M{
		{"operationType": "invalidate"},
		{"operationType": "drop", "ns": bson.M{"coll": "tasks"}},
		{"operationType": "insert", "ns": bson.M{"coll": "users"}, "fullDocument": bson.M{"_id": 1}},
	}
	for _, doc := range tests {
		_, ok, err := f.decode(marshal(t, doc))
		if err != nil {
			t.Errorf("decode(%v): %v", doc, err)
		}
		if ok {
			t.Errorf("decode(%v) should be ignored", doc)
		}
	}
}

func TestPipeline_FiltersByOwner(t *testing.T) {
	userID := primitive.NewObjectID()
	p := pipeline(userID)
	if len(p) != 1 {
		t.Fatalf("expected single $match stage, got %d", len(p))
	}
	raw := marshal(t, p[0])
	or, err := raw.LookupErr("$match", "$or")
	if err != nil {
		t.Fatalf("missing $or: %v", err)
	}
	vals, err := or.Array().Values()
	if err != nil || len(vals) != 2 {
		t.Fatalf("$or values: %v %v", vals, err)
	}
	got, ok := vals[0].Document().Lookup("fullDocument.user_id").ObjectIDOK()
	if !ok || got != userID {
		t.Errorf("fullDocument.user_id: got %v", got)
	}
}

func TestStreamOptions_UsesStoredPostImages(t *testing.T) {
	opts := streamOptions(nil)
	if opts.FullDocument == nil || *opts.FullDocument != options.WhenAvailable {
		t.Errorf("FullDocument: got %v, want %q", opts.FullDocument, options.WhenAvailable)
	}
	if opts.FullDocumentBeforeChange == nil || *opts.FullDocumentBeforeChange != options.WhenAvailable {
		t.Errorf("FullDocumentBeforeChange: got %v, want %q", opts.FullDocumentBeforeChange, options.WhenAvailable)
	}
	if opts.ResumeAfter != nil {
		t.Errorf("ResumeAfter: got %v, want nil", opts.ResumeAfter)
	}

	token := marshal(t, bson.M{"_data": "8264"})
	if got := streamOptions(token); got.ResumeAfter == nil {
		t.Error("expected ResumeAfter to carry the resume token")
	}
}

// Completing a task and reopening it right away yields two update events,
// each with its own before and after image. Applied in order they cancel.
func TestDecode_QuickToggleNetsToZero(t *testing.T) {
	f := New(nil, zap.NewNop())
	now := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)
	userID := primitive.NewObjectID()
	due := now.Add(-time.Hour)

	open := models.Task{ID: primitive.NewObjectID(), UserID: userID, Title: "t", DueDate: &due, UpdatedAt: now.Add(-time.Minute)}
	done := open
	done.Completed = true
	done.UpdatedAt = now
	reopened := open
	reopened.UpdatedAt = now.Add(time.Second)

	start := dashmetrics.Metrics{PendingTasks: 1, OverdueTasks: 1, MonthlyExpenses: decimal.Zero}
	m := start
	for _, pair := range [][2]models.Task{{open, done}, {done, reopened}} {
		ev, ok, err := f.decode(marshal(t, bson.M{
			"operationType":            "update",
			"ns":                       bson.M{"coll": "tasks"},
			"fullDocumentBeforeChange": pair[0],
			"fullDocument":             pair[1],
		}))
		if err != nil || !ok {
			t.Fatalf("decode: ok=%v err=%v", ok, err)
		}
		m = dashmetrics.ApplyDelta(m, ev, now)
	}

	if m.PendingTasks != start.PendingTasks || m.OverdueTasks != start.OverdueTasks {
		t.Errorf("after toggle: pending=%d overdue=%d, want %d/%d",
			m.PendingTasks, m.OverdueTasks, start.PendingTasks, start.OverdueTasks)
	}
}
