// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/waffle/config"
	"github.com/sheltrhq/sheltr/internal/app/system/bsondecimal"
	"github.com/sheltrhq/sheltr/internal/app/system/changefeed"
	"github.com/sheltrhq/sheltr/internal/app/system/indexes"
	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"github.com/sheltrhq/sheltr/internal/app/system/validators"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB opens the MongoDB client with the decimal codec registered and
// verifies it with a ping.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetRegistry(bsondecimal.Registry()).
		SetServerSelectionTimeout(timeouts.Long())
	if appCfg.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(appCfg.MongoMaxPoolSize)
	}
	if appCfg.MongoMinPoolSize > 0 {
		opts.SetMinPoolSize(appCfg.MongoMinPoolSize)
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		logger.Error("MongoDB connect failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error("MongoDB ping failed", zap.Error(err))
		return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))
	return DBDeps{
		SheltrMongoClient:   client,
		SheltrMongoDatabase: client.Database(appCfg.MongoDatabase),
		Runtime:             &Runtime{},
	}, nil
}

// EnsureSchema creates collections with their validators, enables change
// stream pre-images on the watched collections, and builds indexes.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.SheltrMongoDatabase

	if err := validators.EnsureAll(ctx, db); err != nil {
		logger.Error("collection validators failed", zap.Error(err))
		return fmt.Errorf("validators: %w", err)
	}
	// Without pre-images, delete events are dropped and only the next
	// refresh corrects the counters.
	if err := validators.EnablePreImages(ctx, db, changefeed.Collections...); err != nil {
		logger.Warn("change-stream pre-images not enabled", zap.Error(err))
	}
	if err := indexes.EnsureAll(ctx, db, logger); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return fmt.Errorf("indexes: %w", err)
	}
	return nil
}
