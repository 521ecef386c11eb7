// internal/app/system/validators/validators.go
package validators

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The email address users type to log in

import (
	"context"
	"errors"
	"strings"

	"github.com/sheltrhq/sheltr/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	// helper: ensure collection exists (with truthful logging) and then validator (if provided)
	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	ensure("users", usersSchema())
	ensure("tasks", tasksSchema())
	ensure("documents", documentsSchema())
	ensure("expenses", expensesSchema())
	ensure("bank_links", bankLinksSchema())
	ensure("user_settings", userSettingsSchema())

	// Snapshot rows are validated on read (a malformed row is treated as
	// missing), so the collection only needs to exist.
	ensure("dashboard_snapshots", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// EnablePreImages turns on change-stream pre- and post-images for the
// given collections so delete events carry the deleted row's owner.
// Servers older than MongoDB 6.0 reject the option; that is logged and
// skipped.
func EnablePreImages(ctx context.Context, db *mongo.Database, colls ...string) error {
	var problems []string
	for _, coll := range colls {
		cmd := bson.D{
			{Key: "collMod", Value: coll},
			{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
		}
		if err := db.RunCommand(ctx, cmd).Err(); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) || isUnknownOption(err) {
				zap.L().Info("change-stream pre-images skipped (unsupported)", zap.String("collection", coll))
				continue
			}
			problems = append(problems, coll+": "+err.Error())
			continue
		}
		zap.L().Info("change-stream pre-images enabled", zap.String("collection", coll))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		zap.L().Info("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			zap.L().Info("collection exists", zap.String("collection", name))
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

func isUnknownOption(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 72 || ce.Code == 40415) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unknown option") || strings.Contains(s, "unrecognized")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"email", "email_ci", "password_hash", "status"},
			"properties": bson.M{
				"full_name":     bson.M{"bsonType": "string"},
				"email":         bson.M{"bsonType": "string", "minLength": 3, "pattern": ".*@.*"},
				"email_ci":      bson.M{"bsonType": "string", "minLength": 3},
				"password_hash": bson.M{"bsonType": "string", "minLength": 1},
				"status":        bson.M{"enum": bson.A{"active", "disabled"}},
			},
		},
	}
}

func tasksSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "title", "completed", "created_at", "updated_at"},
			"properties": bson.M{
				"user_id":    bson.M{"bsonType": "objectId"},
				"title":      bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"completed":  bson.M{"bsonType": "bool"},
				"due_date":   bson.M{"bsonType": "date"},
				"deleted_at": bson.M{"bsonType": "date"},
				"created_at": bson.M{"bsonType": "date"},
				"updated_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func documentsSchema() bson.M {
	kinds := bson.A{}
	for _, k := range models.DocumentKinds {
		kinds = append(kinds, k)
	}

	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "title", "created_at"},
			"properties": bson.M{
				"user_id":    bson.M{"bsonType": "objectId"},
				"title":      bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"kind":       bson.M{"enum": kinds},
				"created_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func expensesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "amount", "date", "source", "created_at"},
			"properties": bson.M{
				"user_id":     bson.M{"bsonType": "objectId"},
				"amount":      bson.M{"bsonType": bson.A{"decimal", "double", "int", "long"}, "minimum": 0},
				"date":        bson.M{"bsonType": "date"},
				"description": bson.M{"bsonType": "string"},
				"category":    bson.M{"bsonType": "string"},
				"source":      bson.M{"enum": bson.A{"manual", "bank"}},
				"external_id": bson.M{"bsonType": "string", "minLength": 1},
				"created_at":  bson.M{"bsonType": "date"},
				"updated_at":  bson.M{"bsonType": "date"},
			},
		},
	}
}

func bankLinksSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "institution", "access_token", "sync_status"},
			"properties": bson.M{
				"user_id":        bson.M{"bsonType": "objectId"},
				"institution":    bson.M{"bsonType": "string", "minLength": 1},
				"access_token":   bson.M{"bsonType": "string", "minLength": 1},
				"cursor":         bson.M{"bsonType": "string"},
				"sync_status":    bson.M{"enum": bson.A{"never", "ok", "failed", "running"}},
				"last_synced_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func userSettingsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "monthly_budget"},
			"properties": bson.M{
				"user_id":        bson.M{"bsonType": "objectId"},
				"monthly_budget": bson.M{"bsonType": bson.A{"decimal", "double", "int", "long"}, "minimum": 0},
			},
		},
	}
}
