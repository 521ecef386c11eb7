// internal/app/store/settings/settingsstore.go
package settingsstore

import (
	"context"
	"errors"
	"time"

	"github.com/sheltrhq/sheltr/internal/domain/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection holds per-user settings.
const Collection = "user_settings"

// Store provides access to the user_settings collection.
// Each user has at most one settings document (one document per user_id).
type Store struct {
	c *mongo.Collection
}

// New creates a new settings store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// EnsureIndexes creates the unique per-user key.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName("uniq_user_settings_user").SetUnique(true),
	})
	return err
}

// Get returns the settings for a user.
// If no settings exist for the user, returns defaults (zero budget).
func (s *Store) Get(ctx context.Context, userID primitive.ObjectID) (models.UserSettings, error) {
	var settings models.UserSettings
	err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&settings)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.UserSettings{UserID: userID, MonthlyBudget: decimal.Zero}, nil
	}
	if err != nil {
		return models.UserSettings{}, err
	}
	return settings, nil
}

// SaveBudget sets the user's monthly budget.
// Uses upsert so it works whether settings exist or not.
func (s *Store) SaveBudget(ctx context.Context, userID primitive.ObjectID, budget decimal.Decimal) (models.UserSettings, error) {
	if budget.IsNegative() {
		return models.UserSettings{}, errors.New("budget must not be negative")
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"user_id":        userID,
			"monthly_budget": budget,
			"updated_at":     now,
		},
		"$setOnInsert": bson.M{
			"_id": primitive.NewObjectID(),
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.c.UpdateOne(ctx, bson.M{"user_id": userID}, update, opts); err != nil {
		return models.UserSettings{}, err
	}
	return models.UserSettings{UserID: userID, MonthlyBudget: budget, UpdatedAt: &now}, nil
}

// Delete removes settings for a user.
func (s *Store) Delete(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"user_id": userID})
	return err
}
