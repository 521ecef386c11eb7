package dashmetrics_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"github.com/shopspring/decimal"
)

func baseMetrics() dashmetrics.Metrics {
	return dashmetrics.Metrics{
		PendingTasks:    2,
		OverdueTasks:    1,
		TotalDocuments:  4,
		MonthlyExpenses: dec("300.00"),
	}
}

func taskEvent(op dashmetrics.Op, oldT, newT *dashmetrics.TaskRow) dashmetrics.ChangeEvent {
	return dashmetrics.ChangeEvent{Table: dashmetrics.TableTasks, Op: op, OldTask: oldT, NewTask: newT}
}

func expenseEvent(op dashmetrics.Op, oldE, newE *dashmetrics.ExpenseRow) dashmetrics.ChangeEvent {
	return dashmetrics.ChangeEvent{Table: dashmetrics.TableExpenses, Op: op, OldExpense: oldE, NewExpense: newE}
}

func docEvent(op dashmetrics.Op) dashmetrics.ChangeEvent {
	return dashmetrics.ChangeEvent{Table: dashmetrics.TableDocuments, Op: op}
}

func TestApplyDelta_InsertOverdueTask(t *testing.T) {
	m := baseMetrics()
	task := dashmetrics.TaskRow{ID: "n", DueDate: ptime(testNow.AddDate(0, 0, -1)), UpdatedAt: testNow}

	got := dashmetrics.ApplyDelta(m, taskEvent(dashmetrics.OpInsert, nil, &task), testNow)

	if got.PendingTasks != m.PendingTasks+1 {
		t.Errorf("PendingTasks: got %d, want %d", got.PendingTasks, m.PendingTasks+1)
	}
	if got.OverdueTasks != m.OverdueTasks+1 {
		t.Errorf("OverdueTasks: got %d, want %d", got.OverdueTasks, m.OverdueTasks+1)
	}
	if got.LastActivity == nil || !got.LastActivity.Equal(testNow) {
		t.Errorf("LastActivity: got %v, want %v", got.LastActivity, testNow)
	}
}

func TestApplyDelta_CompleteOverdueTaskRestoresCounts(t *testing.T) {
	m := baseMetrics()
	due := ptime(testNow.AddDate(0, 0, -1))
	created := dashmetrics.TaskRow{ID: "n", DueDate: due}
	completed := dashmetrics.TaskRow{ID: "n", DueDate: due, Completed: true}

	afterInsert := dashmetrics.ApplyDelta(m, taskEvent(dashmetrics.OpInsert, nil, &created), testNow)
	afterUpdate := dashmetrics.ApplyDelta(afterInsert, taskEvent(dashmetrics.OpUpdate, &created, &completed), testNow)

	if afterUpdate.PendingTasks != afterInsert.PendingTasks-1 {
		t.Errorf("PendingTasks: got %d, want %d", afterUpdate.PendingTasks, afterInsert.PendingTasks-1)
	}
	if afterUpdate.OverdueTasks != afterInsert.OverdueTasks-1 {
		t.Errorf("OverdueTasks: got %d, want %d", afterUpdate.OverdueTasks, afterInsert.OverdueTasks-1)
	}
	if afterUpdate.PendingTasks != m.PendingTasks || afterUpdate.OverdueTasks != m.OverdueTasks {
		t.Errorf("expected pre-insert counts %d/%d, got %d/%d",
			m.PendingTasks, m.OverdueTasks, afterUpdate.PendingTasks, afterUpdate.OverdueTasks)
	}
}

func TestApplyDelta_ToggleIsIdempotent(t *testing.T) {
	tests := []struct {
		name string
		due  *time.Time
	}{
		{"overdue", ptime(testNow.AddDate(0, 0, -2))},
		{"future", ptime(testNow.AddDate(0, 0, 2))},
		{"no due date", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := baseMetrics()
			open := dashmetrics.TaskRow{ID: "x", DueDate: tt.due}
			done := dashmetrics.TaskRow{ID: "x", DueDate: tt.due, Completed: true}

			got := dashmetrics.ApplyDelta(m, taskEvent(dashmetrics.OpUpdate, &open, &done), testNow)
			got = dashmetrics.ApplyDelta(got, taskEvent(dashmetrics.OpUpdate, &done, &open), testNow)

			if got.PendingTasks != m.PendingTasks || got.OverdueTasks != m.OverdueTasks {
				t.Errorf("got %d/%d, want %d/%d", got.PendingTasks, got.OverdueTasks, m.PendingTasks, m.OverdueTasks)
			}
		})
	}
}

func TestApplyDelta_DueDateChange(t *testing.T) {
	m := baseMetrics()
	future := dashmetrics.TaskRow{ID: "x", DueDate: ptime(testNow.AddDate(0, 0, 3))}
	past := dashmetrics.TaskRow{ID: "x", DueDate: ptime(testNow.AddDate(0, 0, -3))}

	got := dashmetrics.ApplyDelta(m, taskEvent(dashmetrics.OpUpdate, &future, &past), testNow)
	if got.PendingTasks != m.PendingTasks {
		t.Errorf("PendingTasks changed: got %d, want %d", got.PendingTasks, m.PendingTasks)
	}
	if got.OverdueTasks != m.OverdueTasks+1 {
		t.Errorf("OverdueTasks: got %d, want %d", got.OverdueTasks, m.OverdueTasks+1)
	}

	back := dashmetrics.ApplyDelta(got, taskEvent(dashmetrics.OpUpdate, &past, &future), testNow)
	if back.OverdueTasks != m.OverdueTasks {
		t.Errorf("OverdueTasks after moving due date back: got %d, want %d", back.OverdueTasks, m.OverdueTasks)
	}
}

func TestApplyDelta_DueDateChangeOnCompletedTaskIsNoop(t *testing.T) {
	m := baseMetrics()
	a := dashmetrics.TaskRow{ID: "x", Completed: true, DueDate: ptime(testNow.AddDate(0, 0, 3))}
	b := dashmetrics.TaskRow{ID: "x", Completed: true, DueDate: ptime(testNow.AddDate(0, 0, -3))}

	got := dashmetrics.ApplyDelta(m, taskEvent(dashmetrics.OpUpdate, &a, &b), testNow)
	if !got.Equal(m) {
		t.Errorf("expected no change, got %+v", got)
	}
}

func TestApplyDelta_SoftDeleteActsAsDelete(t *testing.T) {
	m := baseMetrics()
	due := ptime(testNow.AddDate(0, 0, -1))
	live := dashmetrics.TaskRow{ID: "x", DueDate: due}
	gone := dashmetrics.TaskRow{ID: "x", DueDate: due, Deleted: true}

	got := dashmetrics.ApplyDelta(m, taskEvent(dashmetrics.OpUpdate, &live, &gone), testNow)
	if got.PendingTasks != m.PendingTasks-1 || got.OverdueTasks != m.OverdueTasks-1 {
		t.Errorf("got %d/%d, want %d/%d", got.PendingTasks, got.OverdueTasks, m.PendingTasks-1, m.OverdueTasks-1)
	}
}

func TestApplyDelta_DeleteTask(t *testing.T) {
	m := baseMetrics()
	overdue := dashmetrics.TaskRow{ID: "x", DueDate: ptime(testNow.AddDate(0, 0, -1))}
	done := dashmetrics.TaskRow{ID: "y", Completed: true}

	got := dashmetrics.ApplyDelta(m, taskEvent(dashmetrics.OpDelete, &overdue, nil), testNow)
	if got.PendingTasks != 1 || got.OverdueTasks != 0 {
		t.Errorf("after deleting overdue task: got %d/%d, want 1/0", got.PendingTasks, got.OverdueTasks)
	}

	got = dashmetrics.ApplyDelta(got, taskEvent(dashmetrics.OpDelete, &done, nil), testNow)
	if got.PendingTasks != 1 {
		t.Errorf("deleting a completed task changed pending: got %d, want 1", got.PendingTasks)
	}
}

func TestApplyDelta_MissingImagesAreIgnored(t *testing.T) {
	m := baseMetrics()
	events := []dashmetrics.ChangeEvent{
		taskEvent(dashmetrics.OpInsert, nil, nil),
		taskEvent(dashmetrics.OpUpdate, nil, &dashmetrics.TaskRow{ID: "x"}),
		taskEvent(dashmetrics.OpDelete, nil, nil),
		expenseEvent(dashmetrics.OpUpdate, &dashmetrics.ExpenseRow{Amount: dec("5"), Date: testNow}, nil),
		expenseEvent(dashmetrics.OpDelete, nil, nil),
		{Table: "unknown", Op: dashmetrics.OpInsert},
	}
	for _, ev := range events {
		if got := dashmetrics.ApplyDelta(m, ev, testNow); !got.Equal(m) {
			t.Errorf("event %+v changed metrics to %+v", ev, got)
		}
	}
}

func TestApplyDelta_DocumentDeleteFloorsAtZero(t *testing.T) {
	m := dashmetrics.Metrics{TotalDocuments: 1, MonthlyExpenses: decimal.Zero}

	got := dashmetrics.ApplyDelta(m, docEvent(dashmetrics.OpDelete), testNow)
	if got.TotalDocuments != 0 {
		t.Errorf("TotalDocuments: got %d, want 0", got.TotalDocuments)
	}
	got = dashmetrics.ApplyDelta(got, docEvent(dashmetrics.OpDelete), testNow)
	if got.TotalDocuments != 0 {
		t.Errorf("TotalDocuments below zero: got %d", got.TotalDocuments)
	}
	got = dashmetrics.ApplyDelta(got, docEvent(dashmetrics.OpInsert), testNow)
	if got.TotalDocuments != 1 {
		t.Errorf("TotalDocuments after insert: got %d, want 1", got.TotalDocuments)
	}
}

func TestApplyDelta_ExpenseInsertExactAmount(t *testing.T) {
	m := baseMetrics()
	e := dashmetrics.ExpenseRow{ID: "e", Amount: dec("145.50"), Date: testNow, CreatedAt: testNow}

	got := dashmetrics.ApplyDelta(m, expenseEvent(dashmetrics.OpInsert, nil, &e), testNow)

	want := m.MonthlyExpenses.Add(dec("145.50"))
	if !got.MonthlyExpenses.Equal(want) {
		t.Errorf("MonthlyExpenses: got %s, want %s", got.MonthlyExpenses, want)
	}
}

func TestApplyDelta_BackdatedExpenseIgnored(t *testing.T) {
	m := baseMetrics()
	lastMonth := time.Date(2026, time.September, 30, 0, 0, 0, 0, time.UTC)
	e := dashmetrics.ExpenseRow{ID: "e", Amount: dec("99.99"), Date: lastMonth, CreatedAt: testNow}

	got := dashmetrics.ApplyDelta(m, expenseEvent(dashmetrics.OpInsert, nil, &e), testNow)
	if !got.MonthlyExpenses.Equal(m.MonthlyExpenses) {
		t.Errorf("MonthlyExpenses: got %s, want %s", got.MonthlyExpenses, m.MonthlyExpenses)
	}

	got = dashmetrics.ApplyDelta(m, expenseEvent(dashmetrics.OpDelete, &e, nil), testNow)
	if !got.MonthlyExpenses.Equal(m.MonthlyExpenses) {
		t.Errorf("deleting a back-dated expense changed total: got %s", got.MonthlyExpenses)
	}
}

func TestApplyDelta_ExpenseUpdateMovesAmount(t *testing.T) {
	m := baseMetrics()
	oldE := dashmetrics.ExpenseRow{ID: "e", Amount: dec("50.00"), Date: testNow}
	newE := dashmetrics.ExpenseRow{ID: "e", Amount: dec("75.25"), Date: testNow}

	got := dashmetrics.ApplyDelta(m, expenseEvent(dashmetrics.OpUpdate, &oldE, &newE), testNow)
	if !got.MonthlyExpenses.Equal(dec("325.25")) {
		t.Errorf("MonthlyExpenses: got %s, want 325.25", got.MonthlyExpenses)
	}
}

func TestApplyDelta_ExpenseDeleteFloorsAtZero(t *testing.T) {
	m := dashmetrics.Metrics{MonthlyExpenses: dec("10.00")}
	e := dashmetrics.ExpenseRow{ID: "e", Amount: dec("25.00"), Date: testNow}

	got := dashmetrics.ApplyDelta(m, expenseEvent(dashmetrics.OpDelete, &e, nil), testNow)
	if !got.MonthlyExpenses.IsZero() {
		t.Errorf("MonthlyExpenses: got %s, want 0", got.MonthlyExpenses)
	}
}

// Random event sequences, including duplicates and deletes of rows never
// seen, must keep every counter non-negative and overdue within pending.
func TestApplyDelta_InvariantsHoldForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ops := []dashmetrics.Op{dashmetrics.OpInsert, dashmetrics.OpUpdate, dashmetrics.OpDelete}

	randTask := func() *dashmetrics.TaskRow {
		t := &dashmetrics.TaskRow{
			ID:        "t",
			Completed: rng.Intn(2) == 0,
			Deleted:   rng.Intn(5) == 0,
		}
		if rng.Intn(3) > 0 {
			t.DueDate = ptime(testNow.AddDate(0, 0, rng.Intn(11)-5))
		}
		return t
	}
	randExpense := func() *dashmetrics.ExpenseRow {
		return &dashmetrics.ExpenseRow{
			ID:     "e",
			Amount: decimal.NewFromInt(int64(rng.Intn(20000))).Shift(-2),
			Date:   testNow.AddDate(0, 0, -rng.Intn(40)),
		}
	}

	for run := 0; run < 200; run++ {
		m := dashmetrics.Metrics{MonthlyExpenses: decimal.Zero}
		for step := 0; step < 50; step++ {
			op := ops[rng.Intn(len(ops))]
			var ev dashmetrics.ChangeEvent
			switch rng.Intn(3) {
			case 0:
				ev = taskEvent(op, randTask(), randTask())
			case 1:
				ev = expenseEvent(op, randExpense(), randExpense())
			default:
				ev = docEvent(op)
			}

			m = dashmetrics.ApplyDelta(m, ev, testNow)

			if m.PendingTasks < 0 || m.OverdueTasks < 0 || m.TotalDocuments < 0 || m.MonthlyExpenses.IsNegative() {
				t.Fatalf("run %d step %d: negative counter %+v", run, step, m)
			}
			if m.OverdueTasks > m.PendingTasks {
				t.Fatalf("run %d step %d: overdue %d > pending %d", run, step, m.OverdueTasks, m.PendingTasks)
			}
		}
	}
}
