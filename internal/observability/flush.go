package observability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Shutdown releases process-wide resources in order: closers first (cache
// connections), then the log buffer so their errors are still written.
// Prometheus is pull-based and needs no flush. Closers are skipped once ctx is done.
func Shutdown(ctx context.Context, logger *zap.Logger, closers ...func() error) error {
	var errs []error
	for i, closeFn := range closers {
		if closeFn == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("close resources: %w", err))
			break
		}
		if err := closeFn(); err != nil {
			errs = append(errs, fmt.Errorf("close resource %d: %w", i, err))
			if logger != nil {
				logger.Error("resource close failed", zap.Int("index", i), zap.Error(err))
			}
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
