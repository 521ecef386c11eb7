// internal/app/store/metrics/metricsstore.go
package metricsstore

import (
	"context"
	"errors"
	"time"

	documentstore "github.com/sheltrhq/sheltr/internal/app/store/documents"
	expensestore "github.com/sheltrhq/sheltr/internal/app/store/expenses"
	taskstore "github.com/sheltrhq/sheltr/internal/app/store/tasks"
	"github.com/sheltrhq/sheltr/internal/app/system/dashmetrics"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// Collection holds one precomputed dashboard rollup per user.
const Collection = "dashboard_snapshots"

// Store reads and writes dashboard snapshots and performs the raw reads
// used for live aggregation. It satisfies dashmetrics.SnapshotReader,
// dashmetrics.SnapshotWriter and dashmetrics.RawReader.
type Store struct {
	db    *mongo.Database
	snaps *mongo.Collection
}

// New creates a new metrics store.
func New(db *mongo.Database) *Store {
	return &Store{db: db, snaps: db.Collection(Collection)}
}

// EnsureIndexes creates the per-user unique key and the dirty sweep index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.snaps.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("uniq_snapshots_user").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "dirty", Value: 1}},
			Options: options.Index().SetName("idx_snapshots_dirty"),
		},
		{
			Keys:    bson.D{{Key: "next_due_at", Value: 1}},
			Options: options.Index().SetName("idx_snapshots_next_due").SetSparse(true),
		},
	})
	return err
}

// Lookup returns the user's snapshot. A row that is missing, dirty, or
// missing any counter is reported as not found so the caller aggregates
// live instead of rendering partial numbers.
func (s *Store) Lookup(ctx context.Context, userID primitive.ObjectID) (dashmetrics.Snapshot, bool, error) {
	var row models.DashboardSnapshot
	err := s.snaps.FindOne(ctx, bson.M{"user_id": userID}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return dashmetrics.Snapshot{}, false, nil
	}
	if err != nil {
		return dashmetrics.Snapshot{}, false, err
	}
	snap, ok := fromRow(row)
	return snap, ok, nil
}

func fromRow(row models.DashboardSnapshot) (dashmetrics.Snapshot, bool) {
	if row.Dirty ||
		row.PendingTasks == nil || row.OverdueTasks == nil || row.TotalDocuments == nil ||
		row.MonthlyExpenses == nil || row.MonthStart == nil || row.ComputedAt == nil {
		return dashmetrics.Snapshot{}, false
	}
	if *row.PendingTasks < 0 || *row.OverdueTasks < 0 || *row.TotalDocuments < 0 ||
		*row.OverdueTasks > *row.PendingTasks || row.MonthlyExpenses.IsNegative() {
		return dashmetrics.Snapshot{}, false
	}
	m := dashmetrics.Metrics{
		PendingTasks:    *row.PendingTasks,
		OverdueTasks:    *row.OverdueTasks,
		TotalDocuments:  *row.TotalDocuments,
		MonthlyExpenses: *row.MonthlyExpenses,
	}
	if row.LastActivity != nil {
		t := row.LastActivity.UTC()
		m.LastActivity = &t
	}
	snap := dashmetrics.Snapshot{
		Metrics:    m,
		MonthStart: row.MonthStart.UTC(),
		ComputedAt: row.ComputedAt.UTC(),
	}
	if row.NextDueAt != nil {
		t := row.NextDueAt.UTC()
		snap.NextDueAt = &t
	}
	return snap, true
}

// Save replaces the user's snapshot and clears the dirty flag, unless a
// write was recorded after the computation read its rows: snap.WriteSeq
// must still match the row's write counter.
func (s *Store) Save(ctx context.Context, userID primitive.ObjectID, snap dashmetrics.Snapshot) error {
	m := snap.Metrics
	set := bson.M{
		"user_id":          userID,
		"pending_tasks":    m.PendingTasks,
		"overdue_tasks":    m.OverdueTasks,
		"total_documents":  m.TotalDocuments,
		"monthly_expenses": m.MonthlyExpenses,
		"last_activity":    m.LastActivity,
		"month_start":      snap.MonthStart.UTC(),
		"computed_at":      snap.ComputedAt.UTC(),
		"dirty":            false,
	}
	unset := bson.M{}
	if snap.NextDueAt != nil {
		set["next_due_at"] = snap.NextDueAt.UTC()
	} else {
		unset["next_due_at"] = ""
	}

	filter := bson.M{"user_id": userID, "write_seq": snap.WriteSeq}
	if snap.WriteSeq == 0 {
		filter["write_seq"] = bson.M{"$in": bson.A{nil, int64(0)}}
	}
	update := bson.M{"$set": set, "$setOnInsert": bson.M{"_id": primitive.NewObjectID()}}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	_, err := s.snaps.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// The filter missed because a newer write bumped the counter; the row
		// stays dirty and the next refresh recomputes it.
		return nil
	}
	return err
}

// MarkDirty flags the user's snapshot as stale and bumps its write counter.
// Callers run it in the same transaction as the write it records. A user
// with no snapshot yet gets a bare dirty row, which Lookup treats as not
// found.
func (s *Store) MarkDirty(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.snaps.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":         bson.M{"dirty": true},
			"$inc":         bson.M{"write_seq": int64(1)},
			"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// writeSeq returns the user's write counter, 0 when no write was recorded.
func (s *Store) writeSeq(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	var row struct {
		WriteSeq int64 `bson:"write_seq"`
	}
	err := s.snaps.FindOne(ctx, bson.M{"user_id": userID},
		options.FindOne().SetProjection(bson.M{"write_seq": 1})).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	return row.WriteSeq, err
}

// DirtyUsers returns up to limit user ids whose snapshot is dirty.
func (s *Store) DirtyUsers(ctx context.Context, limit int64) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"user_id": 1}).SetLimit(limit)
	cur, err := s.snaps.Find(ctx, bson.M{"dirty": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			UserID primitive.ObjectID `bson:"user_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.UserID)
	}
	return out, cur.Err()
}

// StaleUsers returns user ids whose snapshot belongs to an earlier month.
func (s *Store) StaleUsers(ctx context.Context, monthStart time.Time, limit int64) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"user_id": 1}).SetLimit(limit)
	cur, err := s.snaps.Find(ctx, bson.M{"month_start": bson.M{"$lt": monthStart.UTC()}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			UserID primitive.ObjectID `bson:"user_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.UserID)
	}
	return out, cur.Err()
}

// DueUsers returns user ids whose snapshot has a pending task that fell due
// at or before now, so its overdue count is stale.
func (s *Store) DueUsers(ctx context.Context, now time.Time, limit int64) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"user_id": 1}).SetLimit(limit)
	cur, err := s.snaps.Find(ctx, bson.M{"next_due_at": bson.M{"$lte": now.UTC()}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			UserID primitive.ObjectID `bson:"user_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.UserID)
	}
	return out, cur.Err()
}

// FetchRaw performs the three owner-scoped reads concurrently. Tasks are
// limited to live rows and expenses to those dated on or after monthStart.
// Any failed read fails the whole fetch. The write counter is read first so
// a snapshot saved from these rows is rejected if a write lands meanwhile.
func (s *Store) FetchRaw(ctx context.Context, userID primitive.ObjectID, monthStart time.Time) (dashmetrics.RawRows, error) {
	seq, err := s.writeSeq(ctx, userID)
	if err != nil {
		return dashmetrics.RawRows{}, err
	}
	rows := dashmetrics.RawRows{WriteSeq: seq}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tasks, err := s.fetchTasks(gctx, userID)
		rows.Tasks = tasks
		return err
	})
	g.Go(func() error {
		docs, err := s.fetchDocuments(gctx, userID)
		rows.Documents = docs
		return err
	})
	g.Go(func() error {
		exps, err := s.fetchExpenses(gctx, userID, monthStart)
		rows.Expenses = exps
		return err
	})

	if err := g.Wait(); err != nil {
		return dashmetrics.RawRows{}, err
	}
	return rows, nil
}

func (s *Store) fetchTasks(ctx context.Context, userID primitive.ObjectID) ([]dashmetrics.TaskRow, error) {
	opts := options.Find().SetProjection(bson.M{"completed": 1, "due_date": 1, "updated_at": 1})
	cur, err := s.db.Collection(taskstore.Collection).Find(ctx,
		bson.M{"user_id": userID, "deleted_at": bson.M{"$exists": false}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []dashmetrics.TaskRow
	for cur.Next(ctx) {
		var t models.Task
		if err := cur.Decode(&t); err != nil {
			return nil, err
		}
		out = append(out, TaskRow(t))
	}
	return out, cur.Err()
}

func (s *Store) fetchDocuments(ctx context.Context, userID primitive.ObjectID) ([]dashmetrics.DocumentRow, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.db.Collection(documentstore.Collection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []dashmetrics.DocumentRow
	for cur.Next(ctx) {
		var d struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, dashmetrics.DocumentRow{ID: d.ID.Hex()})
	}
	return out, cur.Err()
}

func (s *Store) fetchExpenses(ctx context.Context, userID primitive.ObjectID, monthStart time.Time) ([]dashmetrics.ExpenseRow, error) {
	opts := options.Find().SetProjection(bson.M{"amount": 1, "date": 1, "created_at": 1})
	cur, err := s.db.Collection(expensestore.Collection).Find(ctx,
		bson.M{"user_id": userID, "date": bson.M{"$gte": monthStart.UTC()}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []dashmetrics.ExpenseRow
	for cur.Next(ctx) {
		var e models.Expense
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, ExpenseRow(e))
	}
	return out, cur.Err()
}

// TaskRow projects a stored task into the aggregation row shape.
func TaskRow(t models.Task) dashmetrics.TaskRow {
	return dashmetrics.TaskRow{
		ID:        t.ID.Hex(),
		Completed: t.Completed,
		DueDate:   t.DueDate,
		Deleted:   t.IsDeleted(),
		UpdatedAt: t.UpdatedAt,
	}
}

// ExpenseRow projects a stored expense into the aggregation row shape.
func ExpenseRow(e models.Expense) dashmetrics.ExpenseRow {
	return dashmetrics.ExpenseRow{
		ID:        e.ID.Hex(),
		Amount:    e.Amount,
		Date:      e.Date,
		CreatedAt: e.CreatedAt,
	}
}

// Rebuild recomputes and saves a user's snapshot from raw rows.
func (s *Store) Rebuild(ctx context.Context, userID primitive.ObjectID, now time.Time) (dashmetrics.Snapshot, error) {
	monthStart := dashmetrics.MonthStart(now)
	rows, err := s.FetchRaw(ctx, userID, monthStart)
	if err != nil {
		return dashmetrics.Snapshot{}, err
	}
	snap := dashmetrics.Snapshot{
		Metrics:    dashmetrics.ComputeFromRaw(rows, now),
		MonthStart: monthStart,
		ComputedAt: now,
		NextDueAt:  dashmetrics.NextDue(rows, now),
		WriteSeq:   rows.WriteSeq,
	}
	if err := s.Save(ctx, userID, snap); err != nil {
		return dashmetrics.Snapshot{}, err
	}
	return snap, nil
}
