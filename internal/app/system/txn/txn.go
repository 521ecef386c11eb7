// internal/app/system/txn/txn.go
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn inside a multi-document transaction. fn must use the ctx
// it is given so its operations join the session.
//
// On a deployment without transaction support (a standalone mongod) fn runs
// once without a transaction and a warning is logged.
func Run(ctx context.Context, db *mongo.Database, logger *zap.Logger, fn func(ctx context.Context) error) error {
	sess, err := db.Client().StartSession()
	if err != nil {
		if IsNotSupported(err) {
			warn(logger, err)
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		warn(logger, err)
		return fn(ctx)
	}
	return err
}

func warn(logger *zap.Logger, err error) {
	if logger != nil {
		logger.Warn("transactions not supported; running without one", zap.Error(err))
	}
}

// IsNotSupported reports whether err means the server cannot run
// transactions (IllegalOperation, InvalidOptions, OperationNotSupportedInTransaction)
// or reads as such.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	hits := 0
	for _, kw := range []string{"transaction", "replica set", "session", "not supported", "illegal operation"} {
		if strings.Contains(msg, kw) {
			hits++
		}
	}
	return hits >= 2
}
