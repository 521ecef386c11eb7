// Package dashmetrics computes the per-user dashboard counters and keeps them
// live between full computations.
//
// There are two ways to arrive at a Metrics value:
//
//   - ComputeFromRaw aggregates raw task, document, and expense rows. This is
//     authoritative.
//   - ApplyDelta adjusts an existing Metrics value for one change event. This
//     is a latency-hiding overlay only; the next full computation replaces it.
//
// Aggregator ties the two together for one mounted dashboard view.
package dashmetrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metrics is the derived dashboard state for one user.
type Metrics struct {
	PendingTasks    int64           `json:"pending_tasks" yaml:"pending_tasks"`
	OverdueTasks    int64           `json:"overdue_tasks" yaml:"overdue_tasks"`
	TotalDocuments  int64           `json:"total_documents" yaml:"total_documents"`
	MonthlyExpenses decimal.Decimal `json:"monthly_expenses" yaml:"monthly_expenses"`
	LastActivity    *time.Time      `json:"last_activity" yaml:"last_activity"`
}

// Equal reports whether two Metrics values carry the same numbers.
func (m Metrics) Equal(o Metrics) bool {
	if m.PendingTasks != o.PendingTasks ||
		m.OverdueTasks != o.OverdueTasks ||
		m.TotalDocuments != o.TotalDocuments ||
		!m.MonthlyExpenses.Equal(o.MonthlyExpenses) {
		return false
	}
	switch {
	case m.LastActivity == nil && o.LastActivity == nil:
		return true
	case m.LastActivity == nil || o.LastActivity == nil:
		return false
	default:
		return m.LastActivity.Equal(*o.LastActivity)
	}
}

// TaskRow is the part of a task the counters depend on.
type TaskRow struct {
	ID        string
	Completed bool
	DueDate   *time.Time
	Deleted   bool
	UpdatedAt time.Time
}

// ExpenseRow is the part of an expense the counters depend on.
type ExpenseRow struct {
	ID        string
	Amount    decimal.Decimal
	Date      time.Time
	CreatedAt time.Time
}

// DocumentRow only needs to exist; documents contribute a count.
type DocumentRow struct {
	ID string
}

// RawRows is the result of the three owner-scoped reads used in live mode.
// Rows are unordered. WriteSeq is the reader's write version observed
// before the reads; it is carried into any snapshot built from the rows.
type RawRows struct {
	Tasks     []TaskRow
	Documents []DocumentRow
	Expenses  []ExpenseRow
	WriteSeq  int64
}

// Table names a source collection of change events.
type Table string

const (
	TableTasks     Table = "tasks"
	TableDocuments Table = "documents"
	TableExpenses  Table = "expenses"
)

// Op is the kind of change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEvent is one row-level change, carrying whichever before/after
// images the backend delivered. Only the pair matching Table is read.
type ChangeEvent struct {
	Table Table
	Op    Op

	OldTask, NewTask       *TaskRow
	OldExpense, NewExpense *ExpenseRow
}

// MonthStart returns midnight on the first day of now's month, in now's
// location. Expenses dated on or after it count toward MonthlyExpenses.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

func isPending(t TaskRow) bool {
	return !t.Deleted && !t.Completed
}

// isOverdue is the overdue predicate: pending with a due date strictly before now.
func isOverdue(t TaskRow, now time.Time) bool {
	return isPending(t) && t.DueDate != nil && t.DueDate.Before(now)
}

func inMonth(e ExpenseRow, now time.Time) bool {
	return !e.Date.Before(MonthStart(now))
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func laterOf(cur *time.Time, t time.Time) *time.Time {
	if t.IsZero() {
		return cur
	}
	if cur == nil || t.After(*cur) {
		tt := t
		return &tt
	}
	return cur
}

// normalize enforces the counter invariants: nothing negative, and no more
// overdue tasks than pending ones.
func normalize(m Metrics) Metrics {
	if m.PendingTasks < 0 {
		m.PendingTasks = 0
	}
	if m.OverdueTasks < 0 {
		m.OverdueTasks = 0
	}
	if m.OverdueTasks > m.PendingTasks {
		m.OverdueTasks = m.PendingTasks
	}
	if m.TotalDocuments < 0 {
		m.TotalDocuments = 0
	}
	if m.MonthlyExpenses.IsNegative() {
		m.MonthlyExpenses = decimal.Zero
	}
	return m
}
