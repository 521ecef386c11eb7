// internal/app/features/auditlog/handler.go
package auditlog

import (
	uierrors "github.com/sheltrhq/sheltr/internal/app/features/errors"
	"github.com/sheltrhq/sheltr/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves a signed-in user's own account activity.
type Handler struct {
	Events *audit.Store
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger
}

// NewHandler constructs an account activity handler bound to
// the given Mongo database and logger.
func NewHandler(db *mongo.Database, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Events: audit.New(db),
		Log:    logger,
		ErrLog: errLog,
	}
}
