package dashmetrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// ComputeFromRaw aggregates raw rows into Metrics as of now.
//
// Soft-deleted tasks and expenses dated before the start of now's month are
// ignored even if the reader returned them.
func ComputeFromRaw(rows RawRows, now time.Time) Metrics {
	m := Metrics{MonthlyExpenses: decimal.Zero}

	for _, t := range rows.Tasks {
		if t.Deleted {
			continue
		}
		m.PendingTasks += b2i(isPending(t))
		m.OverdueTasks += b2i(isOverdue(t, now))
		m.LastActivity = laterOf(m.LastActivity, t.UpdatedAt)
	}

	m.TotalDocuments = int64(len(rows.Documents))

	for _, e := range rows.Expenses {
		if !inMonth(e, now) {
			continue
		}
		m.MonthlyExpenses = m.MonthlyExpenses.Add(e.Amount)
		m.LastActivity = laterOf(m.LastActivity, e.CreatedAt)
	}

	return normalize(m)
}

// NextDue returns the earliest due date among pending tasks that are not
// yet overdue at now, or nil when there is none. OverdueTasks computed at
// now stays correct until that instant.
func NextDue(rows RawRows, now time.Time) *time.Time {
	var next *time.Time
	for _, t := range rows.Tasks {
		if !isPending(t) || t.DueDate == nil || t.DueDate.Before(now) {
			continue
		}
		if next == nil || t.DueDate.Before(*next) {
			d := *t.DueDate
			next = &d
		}
	}
	return next
}
