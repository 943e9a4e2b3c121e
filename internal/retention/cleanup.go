// Package retention prunes notifications that have been read and are older
// than the configured retention window.
package retention

import (
	"context"
	"time"

	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/metrics"
	"go.uber.org/zap"
)

// NotificationPruner deletes read notifications created before cutoff, at
// most batch rows per call
type NotificationPruner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

// Config controls the cleanup schedule
type Config struct {
	// Retention is how long read notifications are kept. Zero disables cleanup.
	Retention time.Duration
	// Interval between runs
	Interval time.Duration
	// BatchSize caps each delete statement
	BatchSize int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Retention: 90 * 24 * time.Hour,
		Interval:  time.Hour,
		BatchSize: 1000,
	}
}

// CleanupService handles periodic pruning of old read notifications.
// Unread notifications are never removed.
type CleanupService struct {
	store  NotificationPruner
	config Config
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCleanupService creates a new notification cleanup service
func NewCleanupService(store NotificationPruner, config Config) *CleanupService {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupService{
		store:  store,
		config: config,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup process. It does nothing when retention
// is disabled.
func (s *CleanupService) Start() {
	if s.config.Retention <= 0 {
		logger.Log.Info("Notification retention disabled")
		close(s.done)
		return
	}
	logger.Log.Info("Starting notification cleanup service",
		zap.Duration("retention", s.config.Retention),
		zap.Duration("interval", s.config.Interval))
	go s.run()
}

// Stop stops the cleanup service and waits for an in-flight run
func (s *CleanupService) Stop() {
	s.cancel()
	<-s.done
}

// run executes cleanup on the configured interval
func (s *CleanupService) run() {
	defer close(s.done)

	// Run immediately on startup
	s.RunOnce(s.ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// RunOnce deletes every eligible notification in batches and returns the
// number removed
func (s *CleanupService) RunOnce(ctx context.Context) int64 {
	if s.config.Retention <= 0 {
		return 0
	}

	start := time.Now()
	cutoff := s.now().UTC().Add(-s.config.Retention)

	var total int64
	for ctx.Err() == nil {
		n, err := s.store.DeleteReadBefore(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			logger.ErrorWithFields("Notification cleanup failed", err)
			break
		}
		total += n
		if n < int64(s.config.BatchSize) {
			break
		}
	}

	if total > 0 {
		metrics.Get().NotificationsPruned.Add(float64(total))
	}
	logger.Log.Info("Notification cleanup completed",
		zap.Int64("deleted", total),
		zap.Time("cutoff", cutoff),
		logger.WithDuration(time.Since(start)))
	return total
}
