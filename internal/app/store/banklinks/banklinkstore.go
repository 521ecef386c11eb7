// internal/app/store/banklinks/banklinkstore.go
package banklinkstore

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

// Collection holds linked bank accounts.
const Collection = "bank_links"

var (
	ErrNotFound = errors.New("bank link not found")
	// ErrSyncInProgress is returned by BeginSync when another sync holds the link.
	ErrSyncInProgress = errors.New("bank link sync already running")
)

// Store provides owner-scoped access to bank_links.
type Store struct {
	c *mongo.Collection
}

// New creates a new bank link store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// EnsureIndexes creates the owner index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName("idx_bank_links_user"),
	})
	return err
}

// Create stores a new link that has never been synced.
func (s *Store) Create(ctx context.Context, userID primitive.ObjectID, institution, accessToken string) (models.BankLink, error) {
	institution = strings.TrimSpace(institution)
	if institution == "" || accessToken == "" {
		return models.BankLink{}, errors.New("institution and access token are required")
	}
	now := time.Now().UTC()
	l := models.BankLink{
		ID:          primitive.NewObjectID(),
		UserID:      userID,
		Institution: institution,
		AccessToken: accessToken,
		SyncStatus:  models.BankSyncNever,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.c.InsertOne(ctx, l); err != nil {
		return models.BankLink{}, err
	}
	return l, nil
}

// Get returns a link owned by userID.
func (s *Store) Get(ctx context.Context, userID, id primitive.ObjectID) (models.BankLink, error) {
	var l models.BankLink
	err := s.c.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.BankLink{}, ErrNotFound
	}
	return l, err
}

// List returns the user's links, oldest first.
func (s *Store) List(ctx context.Context, userID primitive.ObjectID) ([]models.BankLink, error) {
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.BankLink
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll returns every link that is not currently syncing. Used by the
// periodic sync worker.
func (s *Store) ListAll(ctx context.Context) ([]models.BankLink, error) {
	cur, err := s.c.Find(ctx, bson.M{"sync_status": bson.M{"$ne": models.BankSyncRunning}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.BankLink
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BeginSync marks the link running. A link left running longer than
// staleAfter (a crashed sync) may be taken over.
func (s *Store) BeginSync(ctx context.Context, id primitive.ObjectID, staleAfter time.Duration) (models.BankLink, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"sync_status": bson.M{"$ne": models.BankSyncRunning}},
			bson.M{"updated_at": bson.M{"$lt": now.Add(-staleAfter)}},
		},
	}
	update := bson.M{"$set": bson.M{"sync_status": models.BankSyncRunning, "updated_at": now}}

	var l models.BankLink
	err := s.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": id})
		if cerr == nil && n == 0 {
			return models.BankLink{}, ErrNotFound
		}
		return models.BankLink{}, ErrSyncInProgress
	}
	return l, err
}

// SaveCursor persists the cursor after a page has been applied.
func (s *Store) SaveCursor(ctx context.Context, id primitive.ObjectID, cursor string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"cursor": cursor, "updated_at": time.Now().UTC()}})
	return err
}

// FinishSync records the outcome of a sync. A nil syncErr marks success.
func (s *Store) FinishSync(ctx context.Context, id primitive.ObjectID, syncErr error) error {
	now := time.Now().UTC()
	set := bson.M{"updated_at": now}
	update := bson.M{"$set": set}
	if syncErr == nil {
		set["sync_status"] = models.BankSyncOK
		set["last_synced_at"] = now
		update["$unset"] = bson.M{"sync_error": ""}
	} else {
		set["sync_status"] = models.BankSyncFailed
		set["sync_error"] = syncErr.Error()
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}
