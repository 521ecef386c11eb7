package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/system/bsondecimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultTestURI is used when SHELTR_TEST_MONGO_URI is unset.
const DefaultTestURI = "mongodb://localhost:27017"

// TestContext returns a context with a timeout suitable for a single test.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// SetupTestDB connects to the test MongoDB and returns a fresh, uniquely
// named database that is dropped when the test finishes. The test is
// skipped when MongoDB is unreachable.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	client := connect(t)
	name := fmt.Sprintf("sheltr_test_%s_%s", sanitize(t.Name()), primitive.NewObjectID().Hex()[18:])
	db := client.Database(name)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func connect(t *testing.T) *mongo.Client {
	t.Helper()

	uri := os.Getenv("SHELTR_TEST_MONGO_URI")
	if uri == "" {
		uri = DefaultTestURI
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetRegistry(bsondecimal.Registry()).
		SetServerSelectionTimeout(2 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		t.Skipf("mongo unavailable (%s): %v", uri, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("mongo unavailable (%s): %v", uri, err)
	}
	return client
}

// RequireReplicaSet skips the test unless the server supports change
// streams.
func RequireReplicaSet(t *testing.T, db *mongo.Database) {
	t.Helper()

	ctx, cancel := TestContext()
	defer cancel()

	var hello struct {
		SetName string `bson:"setName"`
	}
	if err := db.Client().Database("admin").RunCommand(ctx, map[string]any{"hello": 1}).Decode(&hello); err != nil {
		t.Skipf("hello failed: %v", err)
	}
	if hello.SetName == "" {
		t.Skip("change streams need a replica set")
	}
}

func sanitize(name string) string {
	r := strings.NewReplacer("/", "_", " ", "_", ".", "_", "$", "_")
	s := r.Replace(name)
	if len(s) > 30 {
		s = s[:30]
	}
	return s
}
