package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/queue"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
)

// Watcher continuously looks for scans that need exclusions applied
type Watcher interface {
	// Start begins the continuous discovery loop
	Start(ctx context.Context) error

	// Discover performs a single discovery cycle
	Discover(ctx context.Context) error
}

// ScanSource is the slice of the state store the watcher reads
type ScanSource interface {
	ListScansPendingExclusions(ctx context.Context) ([]*types.Scan, error)
	GetLatestCompletedScan(ctx context.Context) (*types.Scan, error)
	PruneScans(ctx context.Context, keep int) ([]string, error)
}

// watcherImpl implements the Watcher interface
type watcherImpl struct {
	scans           ScanSource
	taskQueue       queue.TaskQueue
	pollInterval    time.Duration
	reapplyInterval time.Duration
	scansToKeep     int
	logger          *slog.Logger
	now             func() time.Time

	mu          sync.Mutex
	lastReapply time.Time
}

// Config contains configuration for the watcher
type Config struct {
	PollInterval    time.Duration
	ReapplyInterval time.Duration
	ScansToKeep     int // 0 disables pruning
}

// NewWatcher creates a new scan watcher
func NewWatcher(
	scans ScanSource,
	taskQueue queue.TaskQueue,
	config Config,
	logger *slog.Logger,
) Watcher {
	return newWatcher(scans, taskQueue, config, logger)
}

func newWatcher(scans ScanSource, taskQueue queue.TaskQueue, config Config, logger *slog.Logger) *watcherImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &watcherImpl{
		scans:           scans,
		taskQueue:       taskQueue,
		pollInterval:    config.PollInterval,
		reapplyInterval: config.ReapplyInterval,
		scansToKeep:     config.ScansToKeep,
		logger:          logger,
		now:             time.Now,
	}
}

// Start begins the continuous discovery loop
func (w *watcherImpl) Start(ctx context.Context) error {
	w.logger.Info("starting scan watcher",
		"poll_interval", w.pollInterval.String(),
		"reapply_interval", w.reapplyInterval.String(),
		"scans_to_keep", w.scansToKeep)

	if err := w.Discover(ctx); err != nil {
		w.logger.Error("initial discovery failed",
			"error", err.Error())
	}

	// Wait a full poll interval after each cycle completes
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("scan watcher shutting down")
			return ctx.Err()
		case <-time.After(w.pollInterval):
			if err := w.Discover(ctx); err != nil {
				w.logger.Error("discovery cycle failed",
					"error", err.Error())
			}
		}
	}
}

// Discover enqueues completed scans without applied exclusions, re-enqueues
// the latest completed scan when the re-apply interval has elapsed, and prunes
// old scans.
func (w *watcherImpl) Discover(ctx context.Context) error {
	w.logger.Debug("starting discovery cycle")

	pending, err := w.scans.ListScansPendingExclusions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list scans pending exclusions: %w", err)
	}

	enqueued := 0
	for _, scan := range pending {
		if err := w.enqueue(ctx, scan.ScanID, queue.ReasonNewScan); err != nil {
			return err
		}
		enqueued++
	}

	if w.reapplyDue() {
		if err := w.reapply(ctx); err != nil {
			w.logger.Error("failed to schedule exclusion re-application", "error", err.Error())
		}
	}

	if w.scansToKeep > 0 {
		pruned, err := w.scans.PruneScans(ctx, w.scansToKeep)
		if err != nil {
			w.logger.Error("failed to prune scans", "error", err.Error())
		} else if len(pruned) > 0 {
			w.logger.Info("pruned old scans", "count", len(pruned), "keep", w.scansToKeep)
		}
	}

	w.logger.Info("discovery cycle completed", "pending_scans", enqueued)
	return nil
}

func (w *watcherImpl) reapplyDue() bool {
	if w.reapplyInterval <= 0 {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReapply.IsZero() || w.now().Sub(w.lastReapply) >= w.reapplyInterval
}

// reapply re-enqueues the latest completed scan so exclusions that expired
// since the last run stop suppressing its findings
func (w *watcherImpl) reapply(ctx context.Context) error {
	latest, err := w.scans.GetLatestCompletedScan(ctx)
	if err != nil {
		if errors.Is(err, statestore.ErrScanNotFound) {
			w.logger.Debug("no completed scan to re-apply exclusions to")
			w.markReapplied()
			return nil
		}
		return fmt.Errorf("failed to load latest completed scan: %w", err)
	}

	if err := w.enqueue(ctx, latest.ScanID, queue.ReasonReapply); err != nil {
		return err
	}
	w.markReapplied()
	return nil
}

func (w *watcherImpl) markReapplied() {
	w.mu.Lock()
	w.lastReapply = w.now()
	w.mu.Unlock()
}

func (w *watcherImpl) enqueue(ctx context.Context, scanID string, reason queue.Reason) error {
	task := queue.NewExcludeTask(scanID, reason)
	if err := w.taskQueue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue scan %s: %w", scanID, err)
	}
	w.logger.Info("scan enqueued for exclusion application",
		"scan_id", scanID,
		"task_id", task.ID,
		"reason", reason)
	return nil
}
