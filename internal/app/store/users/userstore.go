package userstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/sheltrhq/sheltr/internal/app/system/normalize"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

// Collection holds user accounts.
const Collection = "users"

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"

	minPasswordLen = 8
)

var (
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrInvalidCredentials covers unknown email, wrong password, and disabled accounts alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("user not found")

	ErrEmailRequired = errors.New("email is required")
	ErrShortPassword = errors.New("password must be at least 8 characters")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// EnsureIndexes creates the unique case-insensitive email index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email_ci", Value: 1}},
		Options: options.Index().SetName("uniq_users_email_ci").SetUnique(true),
	})
	return err
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail looks up a user by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.c.FindOne(ctx, bson.M{"email_ci": text.Fold(normalize.Email(email))}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user after normalizing fields and hashing password.
func (s *Store) Create(ctx context.Context, fullName, email, password string) (models.User, error) {
	email = normalize.Email(email)
	if email == "" {
		return models.User{}, ErrEmailRequired
	}
	if len(password) < minPasswordLen {
		return models.User{}, ErrShortPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	now := time.Now().UTC()
	u := models.User{
		ID:           primitive.NewObjectID(),
		FullName:     normalize.Name(fullName),
		Email:        email,
		EmailCI:      text.Fold(email),
		PasswordHash: string(hash),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// Failure reasons carried by AuthError.
const (
	ReasonUnknownEmail  = "unknown_email"
	ReasonDisabled      = "disabled"
	ReasonWrongPassword = "wrong_password"
)

// AuthError explains a failed Authenticate for audit logging. It matches
// ErrInvalidCredentials under errors.Is and prints the same message, so
// callers can show it without revealing which check failed.
type AuthError struct {
	Reason string
	UserID primitive.ObjectID // zero for ReasonUnknownEmail
}

func (e *AuthError) Error() string        { return ErrInvalidCredentials.Error() }
func (e *AuthError) Is(target error) bool { return target == ErrInvalidCredentials }

// Authenticate verifies email and password for an active user.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, &AuthError{Reason: ReasonUnknownEmail}
	}
	if err != nil {
		return nil, err
	}
	if u.Status != StatusActive {
		return nil, &AuthError{Reason: ReasonDisabled, UserID: u.ID}
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, &AuthError{Reason: ReasonWrongPassword, UserID: u.ID}
	}
	return u, nil
}

// SetStatus enables or disables a user.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	status = normalize.Status(status)
	if status != StatusActive && status != StatusDisabled {
		return errors.New(`status must be "active"|"disabled"`)
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIDs returns the ids of all active users.
func (s *Store) ListIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	cur, err := s.c.Find(ctx, bson.M{"status": StatusActive}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []primitive.ObjectID
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.ID)
	}
	return out, cur.Err()
}
