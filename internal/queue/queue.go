package queue

import (
	"context"
	"sync"
	"time"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/observability"
	"github.com/google/uuid"
)

// Reason records why a scan was queued for exclusion application
type Reason string

const (
	ReasonNewScan Reason = "new-scan"
	ReasonReapply Reason = "reapply"
	ReasonManual  Reason = "manual"
)

// TaskQueue manages a queue of exclusion application tasks
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(ctx context.Context, task *ExcludeTask) error

	// Dequeue retrieves a task for processing (blocking)
	Dequeue(ctx context.Context) (*ExcludeTask, error)

	// Complete marks a task as successfully processed (for metrics/logging)
	Complete(ctx context.Context, taskID string) error

	// Fail marks a task as failed (for metrics/logging)
	Fail(ctx context.Context, taskID string, err error) error

	// GetQueueDepth returns current queue size
	GetQueueDepth(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// ExcludeTask asks a worker to apply the stored exclusions to one scan
type ExcludeTask struct {
	ID         string
	ScanID     string
	Reason     Reason
	EnqueuedAt time.Time
	Attempts   int
}

// NewExcludeTask builds a task with a fresh ID
func NewExcludeTask(scanID string, reason Reason) *ExcludeTask {
	return &ExcludeTask{
		ID:         uuid.NewString(),
		ScanID:     scanID,
		Reason:     reason,
		EnqueuedAt: time.Now(),
	}
}

// InMemoryQueue implements TaskQueue using Go channels.
// A scan already waiting in the queue is not queued twice.
type InMemoryQueue struct {
	tasks      chan *ExcludeTask
	pending    map[string]bool // scan ID -> queued
	pendingMu  sync.RWMutex
	metrics    *QueueMetrics
	metricsMu  sync.RWMutex
	closed     bool
	closedMu   sync.RWMutex
	bufferSize int
}

// QueueMetrics tracks queue operation statistics
type QueueMetrics struct {
	Enqueued  int64
	Dequeued  int64
	Completed int64
	Failed    int64
	Dropped   int64 // Dropped due to deduplication
}

// NewInMemoryQueue creates a new in-memory task queue
func NewInMemoryQueue(bufferSize int) *InMemoryQueue {
	return &InMemoryQueue{
		tasks:      make(chan *ExcludeTask, bufferSize),
		pending:    make(map[string]bool),
		metrics:    &QueueMetrics{},
		bufferSize: bufferSize,
	}
}

// Enqueue adds a task to the queue with deduplication
func (q *InMemoryQueue) Enqueue(ctx context.Context, task *ExcludeTask) error {
	q.closedMu.RLock()
	if q.closed {
		q.closedMu.RUnlock()
		return errors.NewPermanentf("queue is closed")
	}
	q.closedMu.RUnlock()

	if task == nil {
		return errors.NewPermanentf("task cannot be nil")
	}

	if task.ScanID == "" {
		return errors.NewPermanentf("task scan ID cannot be empty")
	}

	q.pendingMu.Lock()
	if q.pending[task.ScanID] {
		q.pendingMu.Unlock()
		q.incrementMetric("dropped")
		return nil
	}
	q.pending[task.ScanID] = true
	q.pendingMu.Unlock()

	select {
	case q.tasks <- task:
		q.incrementMetric("enqueued")
		return nil
	case <-ctx.Done():
		q.pendingMu.Lock()
		delete(q.pending, task.ScanID)
		q.pendingMu.Unlock()
		return ctx.Err()
	}
}

// Dequeue retrieves a task for processing (blocking)
func (q *InMemoryQueue) Dequeue(ctx context.Context) (*ExcludeTask, error) {
	q.closedMu.RLock()
	if q.closed {
		q.closedMu.RUnlock()
		return nil, errors.NewPermanentf("queue is closed")
	}
	q.closedMu.RUnlock()

	select {
	case task, ok := <-q.tasks:
		if !ok {
			return nil, errors.NewPermanentf("queue is closed")
		}

		q.pendingMu.Lock()
		delete(q.pending, task.ScanID)
		q.pendingMu.Unlock()

		q.incrementMetric("dequeued")
		return task, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Complete marks a task as successfully processed
func (q *InMemoryQueue) Complete(ctx context.Context, taskID string) error {
	q.incrementMetric("completed")
	return nil
}

// Fail marks a task as failed
func (q *InMemoryQueue) Fail(ctx context.Context, taskID string, err error) error {
	q.incrementMetric("failed")
	return nil
}

// GetQueueDepth returns current queue size
func (q *InMemoryQueue) GetQueueDepth(ctx context.Context) (int, error) {
	return len(q.tasks), nil
}

// Close shuts down the queue gracefully
func (q *InMemoryQueue) Close() error {
	q.closedMu.Lock()
	defer q.closedMu.Unlock()

	if q.closed {
		return errors.NewPermanentf("queue already closed")
	}

	q.closed = true
	close(q.tasks)
	return nil
}

// GetMetrics returns a copy of current metrics
func (q *InMemoryQueue) GetMetrics() QueueMetrics {
	q.metricsMu.RLock()
	defer q.metricsMu.RUnlock()
	return *q.metrics
}

// incrementMetric bumps the local counter and its Prometheus twin
func (q *InMemoryQueue) incrementMetric(metric string) {
	q.metricsMu.Lock()
	defer q.metricsMu.Unlock()

	m := observability.GetMetrics()
	switch metric {
	case "enqueued":
		q.metrics.Enqueued++
		m.QueueEnqueued.Inc()
	case "dequeued":
		q.metrics.Dequeued++
		m.QueueDequeued.Inc()
	case "completed":
		q.metrics.Completed++
		m.QueueCompleted.Inc()
	case "failed":
		q.metrics.Failed++
		m.QueueFailed.Inc()
	case "dropped":
		q.metrics.Dropped++
	}
	m.QueueDepth.Set(float64(len(q.tasks)))
}
