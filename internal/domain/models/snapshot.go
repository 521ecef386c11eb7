// internal/domain/models/snapshot.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DashboardSnapshot is the precomputed per-user rollup stored in
// dashboard_snapshots. Fields are pointers so a decoded row can be checked
// for completeness; a missing field means the row is malformed.
//
// Dirty is set, and WriteSeq bumped, whenever one of the user's tasks,
// documents, or expenses is written. A dirty snapshot is not served, and neither is
// one whose NextDueAt has passed.
type DashboardSnapshot struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	UserID          primitive.ObjectID `bson:"user_id"`
	PendingTasks    *int64             `bson:"pending_tasks"`
	OverdueTasks    *int64             `bson:"overdue_tasks"`
	TotalDocuments  *int64             `bson:"total_documents"`
	MonthlyExpenses *decimal.Decimal   `bson:"monthly_expenses"`
	LastActivity    *time.Time         `bson:"last_activity"`
	MonthStart      *time.Time         `bson:"month_start"`
	ComputedAt      *time.Time         `bson:"computed_at"`
	NextDueAt       *time.Time         `bson:"next_due_at"`
	Dirty           bool               `bson:"dirty"`
	WriteSeq        int64              `bson:"write_seq"`
}
