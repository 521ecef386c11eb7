// internal/app/store/documents/documentstore.go
package documentstore

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

// Collection is the Mongo collection backing the document vault.
const Collection = "documents"

var (
	ErrNotFound      = errors.New("document not found")
	ErrTitleRequired = errors.New("document title is required")
	ErrBadKind       = errors.New("unknown document kind")
)

// Store provides owner-scoped access to document metadata.
type Store struct {
	c *mongo.Collection
}

// New creates a new document store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// EnsureIndexes creates the owner index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("idx_documents_user_created"),
	})
	return err
}

// Create records a document for d.UserID.
func (s *Store) Create(ctx context.Context, d models.Document) (models.Document, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return models.Document{}, ErrTitleRequired
	}
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	d.Kind = strings.ToLower(strings.TrimSpace(d.Kind))
	if d.Kind == "" {
		d.Kind = "other"
	}
	if !models.IsDocumentKind(d.Kind) {
		return models.Document{}, ErrBadKind
	}
	d.CreatedAt = time.Now().UTC()

	if _, err := s.c.InsertOne(ctx, d); err != nil {
		return models.Document{}, err
	}
	return d, nil
}

// Delete removes a document owned by userID.
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

// List returns the user's documents, newest first.
func (s *Store) List(ctx context.Context, userID primitive.ObjectID) ([]models.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Document
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns how many documents the user has.
func (s *Store) Count(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": userID})
}
