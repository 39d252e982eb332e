package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/matcher"
	"github.com/daimoniac/scorecard/internal/observability"
	"github.com/daimoniac/scorecard/internal/policy"
	"github.com/daimoniac/scorecard/internal/queue"
	"github.com/daimoniac/scorecard/internal/statestore"
	"github.com/daimoniac/scorecard/internal/types"
)

// Worker defines the interface for processing exclude tasks
type Worker interface {
	// Start begins processing tasks from the queue
	Start(ctx context.Context) error

	// ProcessTask applies the stored exclusions to one scan
	ProcessTask(ctx context.Context, task *queue.ExcludeTask) error
}

// Store is the slice of the state store the exclude step touches
type Store interface {
	ListExclusions(ctx context.Context) ([]*types.Exclusion, error)
	GetScan(ctx context.Context, scanID string) (*types.Scan, error)
	ListFindings(ctx context.Context, filter statestore.FindingFilter) ([]types.Finding, error)
	BatchPutFindings(ctx context.Context, findings []types.Finding) error
	MarkExclusionsApplied(ctx context.Context, scanID string, at time.Time) error
}

// Catalog supplies requirement severities for the score gate
type Catalog interface {
	RequirementSeverities() map[string]string
}

// Config contains configuration for the worker
type Config struct {
	RetryAttempts    int
	RetryBackoff     time.Duration
	Concurrency      int // Number of concurrent task loops
	MatchConcurrency int // Goroutines per task for matching findings
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		RetryAttempts:    3,
		RetryBackoff:     10 * time.Second,
		Concurrency:      2,
		MatchConcurrency: 8,
	}
}

// ExcludeWorker implements the Worker interface
type ExcludeWorker struct {
	queue    queue.TaskQueue
	store    Store
	catalog  Catalog
	matcher  *matcher.Matcher
	policy   policy.PolicyEngine
	config   Config
	logger   *slog.Logger
	wg       sync.WaitGroup
	pipeline *Pipeline
	now      func() time.Time
}

// NewExcludeWorker creates a new worker instance. A nil policy engine skips the score gate.
func NewExcludeWorker(
	queue queue.TaskQueue,
	store Store,
	catalog Catalog,
	matcher *matcher.Matcher,
	policy policy.PolicyEngine,
	config Config,
	logger *slog.Logger,
) *ExcludeWorker {
	if logger == nil {
		logger = slog.Default()
	}

	worker := &ExcludeWorker{
		queue:   queue,
		store:   store,
		catalog: catalog,
		matcher: matcher,
		policy:  policy,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}

	worker.pipeline = NewPipeline(worker, logger)

	return worker
}

// Start begins processing tasks from the queue
func (w *ExcludeWorker) Start(ctx context.Context) error {
	concurrency := w.config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	w.logger.Info("worker starting", "concurrency", concurrency)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go func(workerID int) {
			defer w.wg.Done()
			w.processLoop(workerCtx, workerID)
		}(i)
	}

	<-workerCtx.Done()

	w.logger.Info("worker shutting down, waiting for in-flight tasks to complete")

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker shutdown complete")
		return nil
	case <-time.After(30 * time.Second):
		w.logger.Warn("worker shutdown timeout, some tasks may not have completed")
		return fmt.Errorf("shutdown timeout")
	}
}

// processLoop is the main task processing loop
func (w *ExcludeWorker) processLoop(ctx context.Context, workerID int) {
	w.logger.Info("worker processing loop started", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker processing loop stopping", "worker_id", workerID)
			return
		default:
			task, err := w.queue.Dequeue(ctx)
			if err != nil {
				if ctx.Err() != nil {
					w.logger.Info("worker dequeue cancelled", "worker_id", workerID, "error", err)
					return
				}
				w.logger.Error("failed to dequeue task", "worker_id", workerID, "error", err)
				// Avoid a tight loop on persistent errors
				time.Sleep(time.Second)
				continue
			}

			w.logger.Info("processing task",
				"worker_id", workerID,
				"task_id", task.ID,
				"scan_id", task.ScanID,
				"reason", task.Reason)

			metrics := observability.GetMetrics()
			if err := w.ProcessTask(ctx, task); err != nil {
				w.logger.Error("task processing failed",
					"worker_id", workerID,
					"task_id", task.ID,
					"scan_id", task.ScanID,
					"error", err)
				metrics.WorkerErrors.Inc()
				_ = w.queue.Fail(ctx, task.ID, err)
			} else {
				w.logger.Info("task processing completed",
					"worker_id", workerID,
					"task_id", task.ID,
					"scan_id", task.ScanID)
				metrics.WorkerTasksProcessed.Inc()
				_ = w.queue.Complete(ctx, task.ID)
			}
		}
	}
}

// ErrorHandlerAction determines what action to take for a given error
type ErrorHandlerAction int

const (
	// ActionRetry indicates the error is transient and should be retried
	ActionRetry ErrorHandlerAction = iota
	// ActionFail indicates the error should not be retried
	ActionFail
)

// handleTaskError classifies an error and returns the action plus the backoff before the next attempt
func (w *ExcludeWorker) handleTaskError(err error, attempt int, task *queue.ExcludeTask) (ErrorHandlerAction, time.Duration) {
	if err == nil {
		return ActionRetry, 0
	}

	retryable := false
	switch errors.ClassifyError(err) {
	case errors.ErrorClassTransient:
		retryable = true
	case errors.ErrorClassUnknown:
		retryable = isRetryableMessage(err)
	}
	if !retryable || attempt >= w.config.RetryAttempts {
		return ActionFail, 0
	}

	backoff := w.config.RetryBackoff * time.Duration(attempt)
	w.logger.Warn("transient error, retrying",
		"task_id", task.ID,
		"scan_id", task.ScanID,
		"attempt", attempt,
		"max_attempts", w.config.RetryAttempts,
		"backoff", backoff,
		"error", err)

	return ActionRetry, backoff
}

// ProcessTask runs the exclude pipeline for one scan with retry logic
func (w *ExcludeWorker) ProcessTask(ctx context.Context, task *queue.ExcludeTask) error {
	if task == nil {
		return errors.NewPermanentf("task is nil")
	}

	attempts := w.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err := w.pipeline.Execute(ctx, task)
		if err == nil {
			return nil
		}
		lastErr = err

		action, backoff := w.handleTaskError(err, attempt, task)
		if action == ActionFail {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return errors.NewPermanentf("max retries exceeded: %w", lastErr)
}

// ApplyNow runs the exclude pipeline once, outside the queue, and returns its summary
func (w *ExcludeWorker) ApplyNow(ctx context.Context, scanID string) (*Result, error) {
	return w.pipeline.Execute(ctx, queue.NewExcludeTask(scanID, queue.ReasonManual))
}
