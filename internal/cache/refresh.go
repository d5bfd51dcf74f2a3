package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dwd-warning-service/internal/observability"
)

// StatesRefresher is implemented by the service layer to reload the state listing.
// Used by Refresher to avoid a circular dependency on the service package.
type StatesRefresher interface {
	Refresh(ctx context.Context) error
}

// Refresher keeps the state listing warm by reloading it on an interval.
type Refresher struct {
	target StatesRefresher
	logger *zap.Logger
}

// NewRefresher creates a Refresher that uses the given target and logger.
func NewRefresher(target StatesRefresher, logger *zap.Logger) *Refresher {
	return &Refresher{target: target, logger: logger}
}

// RefreshOnce reloads the listing once and records metrics.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	start := time.Now()
	observability.RefreshTotal.Inc()
	err := r.target.Refresh(ctx)
	duration := time.Since(start)
	observability.RefreshDurationSecs.Observe(duration.Seconds())
	if err != nil {
		observability.RefreshErrorsTotal.Inc()
		return err
	}
	if r.logger != nil {
		r.logger.Debug("states refreshed", zap.Duration("duration", duration))
	}
	return nil
}

// Run refreshes immediately, then at the given interval until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) error {
	if err := r.RefreshOnce(ctx); err != nil && r.logger != nil {
		r.logger.Warn("initial state refresh failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil && r.logger != nil {
				r.logger.Warn("periodic state refresh failed", zap.Error(err))
			}
		}
	}
}
