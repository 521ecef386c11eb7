// internal/app/store/tasks/taskstore.go
package taskstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the Mongo collection backing tasks.
const Collection = "tasks"

// ErrNotFound is returned when a task does not exist for the given owner.
var ErrNotFound = errors.New("task not found")

// ErrTitleRequired is returned when a task has an empty title.
var ErrTitleRequired = errors.New("task title is required")

// Store provides access to the tasks collection. Every method is scoped by
// owner; a task is never readable or writable through another user's id.
type Store struct {
	c *mongo.Collection
}

// New creates a new task store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// EnsureIndexes creates the indexes used by owner-scoped reads.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "deleted_at", Value: 1}, {Key: "due_date", Value: 1}},
			Options: options.Index().SetName("idx_tasks_user_live_due"),
		},
	})
	return err
}

// Create inserts a new task for t.UserID.
func (s *Store) Create(ctx context.Context, t models.Task) (models.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return models.Task{}, ErrTitleRequired
	}
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.DeletedAt = nil

	if _, err := s.c.InsertOne(ctx, t); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// GetByID returns a live (not soft-deleted) task owned by userID.
func (s *Store) GetByID(ctx context.Context, userID, id primitive.ObjectID) (models.Task, error) {
	var t models.Task
	err := s.c.FindOne(ctx, liveFilter(userID, bson.M{"_id": id})).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, ErrNotFound
	}
	return t, err
}

// Update is a partial update. Nil fields are left unchanged; ClearDueDate
// removes the due date.
type Update struct {
	Title        *string
	Completed    *bool
	DueDate      *time.Time
	ClearDueDate bool
}

// Update applies u to a live task and returns the updated task.
func (s *Store) Update(ctx context.Context, userID, id primitive.ObjectID, u Update) (models.Task, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	unset := bson.M{}

	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return models.Task{}, ErrTitleRequired
		}
		set["title"] = title
	}
	if u.Completed != nil {
		set["completed"] = *u.Completed
	}
	switch {
	case u.ClearDueDate:
		unset["due_date"] = ""
	case u.DueDate != nil:
		set["due_date"] = u.DueDate.UTC()
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var t models.Task
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.c.FindOneAndUpdate(ctx, liveFilter(userID, bson.M{"_id": id}), update, opts).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, ErrNotFound
	}
	return t, err
}

// SoftDelete marks a live task deleted.
func (s *Store) SoftDelete(ctx context.Context, userID, id primitive.ObjectID) error {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		liveFilter(userID, bson.M{"_id": id}),
		bson.M{"$set": bson.M{"deleted_at": now, "updated_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLive returns the user's tasks that are not soft-deleted, soonest due first.
func (s *Store) ListLive(ctx context.Context, userID primitive.ObjectID) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "completed", Value: 1}, {Key: "due_date", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, liveFilter(userID, nil), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DistinctOwners returns every user id that owns at least one task.
func (s *Store) DistinctOwners(ctx context.Context) ([]primitive.ObjectID, error) {
	return distinctIDs(ctx, s.c, "user_id")
}

func liveFilter(userID primitive.ObjectID, extra bson.M) bson.M {
	f := bson.M{"user_id": userID, "deleted_at": bson.M{"$exists": false}}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

func distinctIDs(ctx context.Context, c *mongo.Collection, field string) ([]primitive.ObjectID, error) {
	vals, err := c.Distinct(ctx, field, bson.M{})
	if err != nil {
		return nil, err
	}
	out := make([]primitive.ObjectID, 0, len(vals))
	for _, v := range vals {
		if id, ok := v.(primitive.ObjectID); ok {
			out = append(out, id)
		}
	}
	return out, nil
}
