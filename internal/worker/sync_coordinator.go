// Package worker hosts the background coordinators that run for the
// lifetime of the server process.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/cadence/internal/types"
)

// SyncRunner triggers one sync pass. This interface allows testing with
// mock implementations.
type SyncRunner interface {
	Sync(ctx context.Context) (*types.SyncResult, error)
}

// SyncCoordinator runs periodic sync passes against the remote store.
type SyncCoordinator struct {
	runner   SyncRunner
	interval time.Duration
}

// NewSyncCoordinator creates a coordinator that syncs on the given interval.
func NewSyncCoordinator(runner SyncRunner, interval time.Duration) *SyncCoordinator {
	return &SyncCoordinator{runner: runner, interval: interval}
}

// Run starts the coordinator loop.
func (c *SyncCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Sync immediately on start
	c.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

// runOnce executes a single sync pass. A failed pass is logged and the
// coordinator waits for the next tick; the checkpoint mechanics make the
// retry safe.
func (c *SyncCoordinator) runOnce(ctx context.Context) {
	result, err := c.runner.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log as error
		}
		slog.Warn("sync pass failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "sync_failed",
			"error", err,
		)
		return
	}

	slog.Info("sync cycle completed",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "cycle_complete",
		"remote_changes", result.RemoteChanges,
		"local_changes", result.LocalChanges,
		"conflicts_resolved", result.ConflictsResolved,
		"failures", result.Failures,
	)
}
