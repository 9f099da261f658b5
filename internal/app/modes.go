package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmiguens/arbscout/internal/domain"
	"github.com/dmiguens/arbscout/internal/pipeline"
	"github.com/dmiguens/arbscout/internal/service"
)

// scanLockKey guards scan runs so that only one instance processes listings
// at a time.
const scanLockKey = "arbscout:scan:lock"

// ScanMode runs a single scan pass over recently observed listings, expires
// stale opportunities, and exits.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	runner, oppSvc, err := BuildPipeline(a.cfg, deps, a.logger)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	return a.scanOnce(ctx, runner, oppSvc)
}

// WatchMode runs scan passes on a fixed interval until the context is
// cancelled. Each pass is guarded by a distributed lock so multiple
// instances never process the same listings concurrently; a held lock skips
// the tick rather than queueing behind it.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	runner, oppSvc, err := BuildPipeline(a.cfg, deps, a.logger)
	if err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}

	interval := a.cfg.Pipeline.ScanInterval.Duration
	a.logger.InfoContext(ctx, "watch mode started", slog.Duration("interval", interval))

	// Run immediately on start, then on every tick.
	if err := a.lockedScan(ctx, deps, runner, oppSvc); err != nil {
		a.logger.ErrorContext(ctx, "scan pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "watch mode stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.lockedScan(ctx, deps, runner, oppSvc); err != nil {
				a.logger.ErrorContext(ctx, "scan pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// lockedScan wraps scanOnce in the distributed scan lock.
func (a *App) lockedScan(ctx context.Context, deps *Dependencies, runner *pipeline.Runner, oppSvc *service.OpportunityService) error {
	unlock, err := deps.Locks.Acquire(ctx, scanLockKey, a.cfg.Pipeline.LockTTL.Duration)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "scan lock held elsewhere, skipping pass")
			return nil
		}
		return fmt.Errorf("acquire scan lock: %w", err)
	}
	defer unlock()

	return a.scanOnce(ctx, runner, oppSvc)
}

// scanOnce processes listings observed within the staleness window and then
// expires opportunities whose listings fell out of it.
func (a *App) scanOnce(ctx context.Context, runner *pipeline.Runner, oppSvc *service.OpportunityService) error {
	staleAfter := a.cfg.Analyze.StaleAfter.Duration
	since := time.Now().UTC().Add(-staleAfter)

	if _, err := runner.Scan(ctx, since); err != nil {
		return fmt.Errorf("scan since %s: %w", since.Format(time.RFC3339), err)
	}

	if _, err := oppSvc.ExpireUnseen(ctx, staleAfter); err != nil {
		return fmt.Errorf("expire unseen: %w", err)
	}
	return nil
}

// ArchiveMode moves closed opportunity records older than the retention
// window to cold storage and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	retention := time.Duration(a.cfg.Pipeline.ArchiveRetentionDays) * 24 * time.Hour
	cutoff := time.Now().UTC().Add(-retention)

	a.logger.InfoContext(ctx, "archive run starting",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.cfg.Pipeline.ArchiveRetentionDays),
	)

	count, err := deps.Archiver.Archive(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("records", count))
	return nil
}

// MigrateMode applies pending database migrations and exits. It runs them
// unconditionally, regardless of postgres.run_migrations.
func (a *App) MigrateMode(ctx context.Context, deps *Dependencies) error {
	if err := deps.Postgres.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate mode: %w", err)
	}
	a.logger.InfoContext(ctx, "migrations applied")
	return nil
}
