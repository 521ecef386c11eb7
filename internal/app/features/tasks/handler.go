// internal/app/features/tasks/handler.go
package tasks

import (
	"context"

	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	metricsstore "github.com/sheltrhq/sheltr/internal/app/store/metrics"
	taskstore "github.com/sheltrhq/sheltr/internal/app/store/tasks"
	"github.com/sheltrhq/sheltr/internal/app/system/txn"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the signed-in user's task list.
type Handler struct {
	DB      *mongo.Database
	Tasks   *taskstore.Store
	Metrics *metricsstore.Store
	ErrLog  *uierrors.ErrorLogger
	Log     *zap.Logger
}

func NewHandler(db *mongo.Database, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		DB:      db,
		Tasks:   taskstore.New(db),
		Metrics: metricsstore.New(db),
		ErrLog:  errLog,
		Log:     logger,
	}
}

// write runs fn and flags the owner's dashboard snapshot in one transaction.
func (h *Handler) write(ctx context.Context, userID primitive.ObjectID, fn func(ctx context.Context) error) error {
	return txn.Run(ctx, h.DB, h.Log, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		return h.Metrics.MarkDirty(ctx, userID)
	})
}
