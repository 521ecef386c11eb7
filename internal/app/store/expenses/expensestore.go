// internal/app/store/expenses/expensestore.go
package expensestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/system/normalize"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the Mongo collection backing expenses.
const Collection = "expenses"

var (
	ErrNotFound       = errors.New("expense not found")
	ErrNegativeAmount = errors.New("expense amount must not be negative")
	ErrDateRequired   = errors.New("expense date is required")
)

// Store provides owner-scoped access to expenses.
type Store struct {
	c *mongo.Collection
}

// New creates a new expense store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// EnsureIndexes creates the month-range index and the bank de-dup key.
// external_id is unique per user only where present.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: -1}},
			Options: options.Index().SetName("idx_expenses_user_date"),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "external_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_expenses_user_external").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"external_id": bson.M{"$type": "string"}}),
		},
	})
	return err
}

func validate(e models.Expense) error {
	if e.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if e.Date.IsZero() {
		return ErrDateRequired
	}
	return nil
}

// Create inserts a manually entered expense.
func (s *Store) Create(ctx context.Context, e models.Expense) (models.Expense, error) {
	if err := validate(e); err != nil {
		return models.Expense{}, err
	}
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.Source == "" {
		e.Source = models.ExpenseSourceManual
	}
	e.Description = strings.TrimSpace(e.Description)
	e.Category = normalize.Category(e.Category)
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, e); err != nil {
		return models.Expense{}, err
	}
	return e, nil
}

// Update is a partial update; nil fields are unchanged.
type Update struct {
	Amount      *decimal.Decimal
	Date        *time.Time
	Description *string
	Category    *string
}

// Update applies u to an expense owned by userID.
func (s *Store) Update(ctx context.Context, userID, id primitive.ObjectID, u Update) (models.Expense, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if u.Amount != nil {
		if u.Amount.IsNegative() {
			return models.Expense{}, ErrNegativeAmount
		}
		set["amount"] = *u.Amount
	}
	if u.Date != nil {
		set["date"] = u.Date.UTC()
	}
	if u.Description != nil {
		set["description"] = strings.TrimSpace(*u.Description)
	}
	if u.Category != nil {
		set["category"] = normalize.Category(*u.Category)
	}

	var e models.Expense
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id, "user_id": userID}, bson.M{"$set": set}, opts).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Expense{}, ErrNotFound
	}
	return e, err
}

// Delete removes an expense owned by userID.
func (s *Store) Delete(ctx context.Context, userID, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSince returns the user's expenses dated on or after from, newest first.
func (s *Store) ListSince(ctx context.Context, userID primitive.ObjectID, from time.Time) ([]models.Expense, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID, "date": bson.M{"$gte": from}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Expense
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertExternal inserts or updates a bank-imported expense keyed by
// (user_id, external_id). It reports whether anything was written; a replay
// of an unchanged transaction writes nothing, not even updated_at.
func (s *Store) UpsertExternal(ctx context.Context, e models.Expense) (bool, error) {
	if e.ExternalID == "" {
		return false, errors.New("external id is required")
	}
	if err := validate(e); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	fields := bson.M{
		"amount":      e.Amount,
		"date":        e.Date.UTC(),
		"description": strings.TrimSpace(e.Description),
		"category":    normalize.Category(e.Category),
	}
	key := bson.M{"user_id": e.UserID, "external_id": e.ExternalID}

	// Update an existing row only when one of its fields differs.
	differs := make(bson.A, 0, len(fields))
	for k, v := range fields {
		differs = append(differs, bson.M{k: bson.M{"$ne": v}})
	}
	set := bson.M{"updated_at": now}
	for k, v := range fields {
		set[k] = v
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": e.UserID, "external_id": e.ExternalID, "$or": differs},
		bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	// Either the row is new or it already holds these values.
	insert := bson.M{
		"_id":        primitive.NewObjectID(),
		"source":     models.ExpenseSourceBank,
		"created_at": now,
		"updated_at": now,
	}
	for k, v := range fields {
		insert[k] = v
	}
	res, err = s.c.UpdateOne(ctx, key, bson.M{"$setOnInsert": insert}, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// Inserted concurrently by another sync of the same transaction.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

// DeleteExternal removes bank-imported expenses by external id. It returns
// how many rows were removed.
func (s *Store) DeleteExternal(ctx context.Context, userID primitive.ObjectID, externalIDs []string) (int64, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"user_id": userID, "external_id": bson.M{"$in": externalIDs}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// GetByExternalID returns a bank-imported expense.
func (s *Store) GetByExternalID(ctx context.Context, userID primitive.ObjectID, externalID string) (models.Expense, error) {
	var e models.Expense
	err := s.c.FindOne(ctx, bson.M{"user_id": userID, "external_id": externalID}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Expense{}, ErrNotFound
	}
	return e, err
}
