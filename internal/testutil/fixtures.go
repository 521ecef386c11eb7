package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"github.com/sheltrhq/sheltr/internal/domain/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts an active user. The password hash is a placeholder;
// use the user store when a test needs to authenticate.
func (f *Fixtures) CreateUser(ctx context.Context, name, email string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:           primitive.NewObjectID(),
		FullName:     name,
		Email:        email,
		EmailCI:      text.Fold(email),
		PasswordHash: "x",
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("CreateUser: %v", err)
	}
	return u
}

// CreateTask inserts a task for userID. due may be nil.
func (f *Fixtures) CreateTask(ctx context.Context, userID primitive.ObjectID, title string, completed bool, due *time.Time) models.Task {
	f.t.Helper()

	now := time.Now().UTC()
	task := models.Task{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Title:     title,
		Completed: completed,
		DueDate:   due,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("tasks").InsertOne(ctx, task); err != nil {
		f.t.Fatalf("CreateTask: %v", err)
	}
	return task
}

// CreateDocument inserts a document for userID.
func (f *Fixtures) CreateDocument(ctx context.Context, userID primitive.ObjectID, title string) models.Document {
	f.t.Helper()

	d := models.Document{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Title:     title,
		Kind:      "other",
		CreatedAt: time.Now().UTC(),
	}
	if _, err := f.db.Collection("documents").InsertOne(ctx, d); err != nil {
		f.t.Fatalf("CreateDocument: %v", err)
	}
	return d
}

// CreateExpense inserts a manual expense for userID.
func (f *Fixtures) CreateExpense(ctx context.Context, userID primitive.ObjectID, amount string, date time.Time) models.Expense {
	f.t.Helper()

	now := time.Now().UTC()
	e := models.Expense{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Amount:    decimal.RequireFromString(amount),
		Date:      date.UTC(),
		Source:    models.ExpenseSourceManual,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("expenses").InsertOne(ctx, e); err != nil {
		f.t.Fatalf("CreateExpense: %v", err)
	}
	return e
}
