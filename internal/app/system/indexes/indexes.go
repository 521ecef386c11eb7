// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/store/audit"
	banklinkstore "github.com/sheltrhq/sheltr/internal/app/store/banklinks"
	documentstore "github.com/sheltrhq/sheltr/internal/app/store/documents"
	expensestore "github.com/sheltrhq/sheltr/internal/app/store/expenses"
	metricsstore "github.com/sheltrhq/sheltr/internal/app/store/metrics"
	settingsstore "github.com/sheltrhq/sheltr/internal/app/store/settings"
	taskstore "github.com/sheltrhq/sheltr/internal/app/store/tasks"
	userstore "github.com/sheltrhq/sheltr/internal/app/store/users"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type ensurer interface {
	EnsureIndexes(ctx context.Context) error
}

/*
EnsureAll is called at startup. Each store's EnsureIndexes is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	sets := []struct {
		coll string
		s    ensurer
	}{
		{userstore.Collection, userstore.New(db)},
		{taskstore.Collection, taskstore.New(db)},
		{documentstore.Collection, documentstore.New(db)},
		{expensestore.Collection, expensestore.New(db)},
		{settingsstore.Collection, settingsstore.New(db)},
		{banklinkstore.Collection, banklinkstore.New(db)},
		{metricsstore.Collection, metricsstore.New(db)},
		{audit.Collection, audit.New(db)},
	}

	var problems []string
	for _, set := range sets {
		start := time.Now()
		if err := set.s.EnsureIndexes(ctx); err != nil {
			logger.Warn("ensure indexes failed", zap.String("collection", set.coll), zap.Error(err))
			problems = append(problems, set.coll+": "+err.Error())
			continue
		}
		logger.Debug("indexes ensured",
			zap.String("collection", set.coll),
			zap.Duration("took", time.Since(start)))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
