package dashmetrics

import "time"

// ApplyDelta returns m adjusted for a single change event.
//
// Events missing the row image a rule needs (for example a delete without a
// pre-image) are ignored. The result always satisfies the counter
// invariants; drift from missed or duplicated events is left for the next
// full computation to correct.
func ApplyDelta(m Metrics, ev ChangeEvent, now time.Time) Metrics {
	switch ev.Table {
	case TableDocuments:
		m = documentDelta(m, ev.Op)
	case TableExpenses:
		m = expenseDelta(m, ev, now)
	case TableTasks:
		m = taskDelta(m, ev, now)
	}
	return normalize(m)
}

func documentDelta(m Metrics, op Op) Metrics {
	switch op {
	case OpInsert:
		m.TotalDocuments++
	case OpDelete:
		m.TotalDocuments--
	}
	return m
}

// expenseDelta counts only rows dated in the current month, the same
// predicate the live read filters on. Updates are treated as the old row
// leaving and the new row arriving.
func expenseDelta(m Metrics, ev ChangeEvent, now time.Time) Metrics {
	remove := func(e *ExpenseRow) {
		if e != nil && inMonth(*e, now) {
			m.MonthlyExpenses = m.MonthlyExpenses.Sub(e.Amount)
		}
	}
	add := func(e *ExpenseRow) {
		if e != nil && inMonth(*e, now) {
			m.MonthlyExpenses = m.MonthlyExpenses.Add(e.Amount)
			m.LastActivity = laterOf(m.LastActivity, e.CreatedAt)
		}
	}

	switch ev.Op {
	case OpInsert:
		add(ev.NewExpense)
	case OpUpdate:
		if ev.OldExpense == nil || ev.NewExpense == nil {
			return m
		}
		remove(ev.OldExpense)
		add(ev.NewExpense)
	case OpDelete:
		remove(ev.OldExpense)
	}
	return m
}

// taskDelta adjusts pending/overdue by the difference between the task's
// contribution before and after the change. A toggle of Completed moves
// pending by one; a due-date change moves overdue only; a soft delete
// removes whatever the task contributed.
func taskDelta(m Metrics, ev ChangeEvent, now time.Time) Metrics {
	switch ev.Op {
	case OpInsert:
		if ev.NewTask == nil {
			return m
		}
		m.PendingTasks += b2i(isPending(*ev.NewTask))
		m.OverdueTasks += b2i(isOverdue(*ev.NewTask, now))
		m.LastActivity = laterOf(m.LastActivity, ev.NewTask.UpdatedAt)

	case OpUpdate:
		if ev.OldTask == nil || ev.NewTask == nil {
			return m
		}
		oldT, newT := *ev.OldTask, *ev.NewTask
		m.PendingTasks += b2i(isPending(newT)) - b2i(isPending(oldT))
		m.OverdueTasks += b2i(isOverdue(newT, now)) - b2i(isOverdue(oldT, now))
		m.LastActivity = laterOf(m.LastActivity, newT.UpdatedAt)

	case OpDelete:
		if ev.OldTask == nil {
			return m
		}
		m.PendingTasks -= b2i(isPending(*ev.OldTask))
		m.OverdueTasks -= b2i(isOverdue(*ev.OldTask, now))
	}
	return m
}
