// Package export drives the periodic copy of the journal to object storage.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// exportLockKey names the distributed lock that keeps concurrent replicas
// from exporting the same segment twice.
const exportLockKey = "journal:export"

// exportLockTTL bounds how long a crashed replica can block the next export.
const exportLockTTL = 5 * time.Minute

// Exporter runs journal exports on an interval. When a lock manager is
// present, only the replica holding the export lock uploads; the others skip
// the tick.
type Exporter struct {
	archiver domain.EventArchiver
	locks    domain.LockManager
	logger   *slog.Logger
}

// NewExporter creates an Exporter. locks may be nil for single-replica
// deployments.
func NewExporter(archiver domain.EventArchiver, locks domain.LockManager, logger *slog.Logger) *Exporter {
	return &Exporter{
		archiver: archiver,
		locks:    locks,
		logger:   logger.With(slog.String("component", "export")),
	}
}

// Run executes a single export pass with the current time as cutoff.
func (e *Exporter) Run(ctx context.Context) error {
	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, exportLockKey, exportLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			e.logger.DebugContext(ctx, "journal export skipped, another replica holds the lock")
			return nil
		}
		if err != nil {
			return fmt.Errorf("export: acquire lock: %w", err)
		}
		defer unlock()
	}

	cutoff := time.Now().UTC()
	count, err := e.archiver.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("export: archive events before %v: %w", cutoff, err)
	}

	if count > 0 {
		e.logger.InfoContext(ctx, "journal export complete", slog.Int64("events", count))
	} else {
		e.logger.DebugContext(ctx, "journal export found nothing new")
	}
	return nil
}

// RunLoop runs an export immediately and then on every interval tick until
// the context is cancelled. Individual run failures are logged, not fatal.
func (e *Exporter) RunLoop(ctx context.Context, interval time.Duration) error {
	e.logger.InfoContext(ctx, "journal exporter started", slog.Duration("interval", interval))

	runOnce := func() {
		if err := e.Run(ctx); err != nil {
			e.logger.ErrorContext(ctx, "journal export failed", slog.String("error", err.Error()))
		}
	}

	runOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "journal exporter stopped")
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}
