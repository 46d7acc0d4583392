package odm

import (
	"context"
	"time"

	"github.com/forbearing/godm/logger"
	"go.uber.org/zap"
)

// trace wraps one dispatched operation with the start/duration/error
// logging convention forbearing/gst's database package applies around
// every GORM call, scoped to (alias, collection, op) rather than a
// controller/service request phase.
func trace(_ context.Context, alias, collection, op string, fn func() error) error {
	start := time.Now()
	l := logger.Database.With(
		zap.String("alias", alias),
		zap.String("collection", collection),
		zap.String("op", op),
	)
	err := fn()
	fields := []zap.Field{zap.Duration("duration", time.Since(start))}
	if err != nil {
		l.Error("operation failed", append(fields, zap.Error(err))...)
		return err
	}
	l.Debug("operation completed", fields...)
	return nil
}
