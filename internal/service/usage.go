package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelvault/reelvault/internal/metrics"
)

// ErrRecorderClosed is reported for usage recorded after Close.
var ErrRecorderClosed = errors.New("usage recorder closed")

// UsageStore applies a single usage increment. *config.Store satisfies it.
type UsageStore interface {
	IncrementAPIKeyUsage(ctx context.Context, id string, at time.Time) error
}

type usageEvent struct {
	id string
	at time.Time
}

// UsageOptions sizes a UsageRecorder.
type UsageOptions struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single store update. Zero means 5s.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// UsageRecorder counts successful key verifications off the request path.
// Record never blocks: ids go onto a buffered queue served by a fixed pool
// of workers, and when the queue is full the update runs on its own
// goroutine instead of being dropped.
type UsageRecorder struct {
	store   UsageStore
	queue   chan usageEvent
	errs    chan error
	workers int
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	closed   bool
	base     context.Context
	workerWG sync.WaitGroup
	overflow sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
}

// NewUsageRecorder creates a recorder. Call Start to launch the workers and
// Close to drain them.
func NewUsageRecorder(store UsageStore, opts UsageOptions) *UsageRecorder {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &UsageRecorder{
		store:   store,
		queue:   make(chan usageEvent, opts.QueueSize),
		errs:    make(chan error, 64),
		workers: opts.Workers,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     time.Now,
		base:    context.Background(),
	}
}

// Start launches the worker pool. Cancelling ctx does not abort queued
// updates; Close drains them.
func (r *UsageRecorder) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.mu.Lock()
		r.base = context.WithoutCancel(ctx)
		r.mu.Unlock()

		for i := 0; i < r.workers; i++ {
			r.workerWG.Add(1)
			go r.work()
		}
		r.logger.Debug("usage recorder started", "workers", r.workers, "queue_size", cap(r.queue))
	})
}

// Record schedules one usage increment for the key id.
func (r *UsageRecorder) Record(id string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.report(fmt.Errorf("record usage for key %s: %w", id, ErrRecorderClosed))
		return
	}

	at := r.now()
	select {
	case r.queue <- usageEvent{id: id, at: at}:
	default:
		r.metrics.ObserveUsageOverflow()
		r.overflow.Add(1)
		go func() {
			defer r.overflow.Done()
			r.apply(id, at)
		}()
	}
}

// Errors exposes failed updates. Sends are non-blocking, so errors are
// dropped when nobody is receiving; every failure is also logged.
func (r *UsageRecorder) Errors() <-chan error {
	return r.errs
}

// Close stops accepting records and waits until every queued and in-flight
// update has been applied.
func (r *UsageRecorder) Close() {
	r.closeOnce.Do(func() {
		// Drain whatever was queued even if Start was never called.
		r.Start(context.Background())

		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()

		r.workerWG.Wait()
		r.overflow.Wait()
		r.logger.Debug("usage recorder drained")
	})
}

func (r *UsageRecorder) work() {
	defer r.workerWG.Done()
	for ev := range r.queue {
		r.apply(ev.id, ev.at)
	}
}

func (r *UsageRecorder) apply(id string, at time.Time) {
	r.mu.RLock()
	base := r.base
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(base, r.timeout)
	defer cancel()

	if err := r.store.IncrementAPIKeyUsage(ctx, id, at); err != nil {
		r.metrics.ObserveUsage(metrics.UsageError)
		r.report(fmt.Errorf("record usage for key %s: %w", id, err))
		return
	}
	r.metrics.ObserveUsage(metrics.UsageOK)
}

func (r *UsageRecorder) report(err error) {
	r.logger.Warn("usage update failed", "error", err)
	select {
	case r.errs <- err:
	default:
	}
}
