package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/elitetrust/stepup-ledger/internal/observability"
	"github.com/elitetrust/stepup-ledger/internal/service"
)

// ExpiryWorker periodically retires stale pending transactions. Safe to run
// in multiple instances thanks to FOR UPDATE SKIP LOCKED in the sweep.
type ExpiryWorker struct {
	svc       *service.ExpiryService
	interval  time.Duration
	batchSize int32
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewExpiryWorker constructs a worker with an hourly default interval.
func NewExpiryWorker(svc *service.ExpiryService) *ExpiryWorker {
	return &ExpiryWorker{
		svc:       svc,
		interval:  time.Hour,
		batchSize: 100,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *ExpiryWorker) WithInterval(interval time.Duration) *ExpiryWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize updates the per-sweep claim limit.
func (w *ExpiryWorker) WithBatchSize(size int32) *ExpiryWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *ExpiryWorker) Start(ctx context.Context) {
	zap.L().Info("expiry worker starting", zap.Duration("interval", w.interval), zap.Int32("batch", w.batchSize))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("expiry worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("expiry worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ExpiryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ExpiryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ExpiryWorker) runOnce(ctx context.Context) {
	expired, err := w.svc.Sweep(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("expiry", "failed")
		zap.L().Error("expiry sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("expiry", "success")
	observability.AddExpiredTransactions(expired)
	if expired > 0 {
		zap.L().Warn("expired stale pending transactions", zap.Int("count", expired))
	}
}
