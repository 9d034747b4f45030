package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trislit/BNB-Balloon-Pump-sub000/logger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
)

// Processor runs one drained request to completion and reports the
// outcome. The relay dispatcher is the production implementation.
type Processor interface {
	Process(ctx context.Context, req *models.PumpRequest) models.ProcessOutcome
}

// Worker drains the queue through a bounded pool. Each drained batch is
// processed in parallel up to the concurrency limit; pumps that land on
// the same round still serialize inside the ledger, so parallelism here
// only raises backend throughput.
type Worker struct {
	queue       *Queue
	processor   Processor
	concurrency int
	interval    time.Duration
	batchPause  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewWorker creates a drain worker.
func NewWorker(q *Queue, d Processor, concurrency int, pollInterval, batchPause time.Duration) *Worker {
	if concurrency <= 0 {
		concurrency = 5
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		queue:       q,
		processor:   d,
		concurrency: concurrency,
		interval:    pollInterval,
		batchPause:  batchPause,
	}
}

// Start launches the drain loop. Draining is triggered both by the poll
// ticker and by the queue's wake signal on enqueue.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			case <-w.queue.Wake():
			}
			w.drainAll(runCtx)
		}
	}()

	logger.Logger.Info("Queue worker started",
		zap.Int("concurrency", w.concurrency),
		zap.Duration("poll_interval", w.interval))
	return nil
}

// Stop cancels the loop and waits for in-flight work, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// drainAll processes batches until the queue is empty, pausing briefly
// between batches so the execution backend is not flooded.
func (w *Worker) drainAll(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		batch, err := w.queue.Drain(w.concurrency)
		if err != nil {
			logger.Logger.Error("Drain failed", zap.Error(err))
			return
		}
		if len(batch) == 0 {
			return
		}
		w.processBatch(ctx, batch)

		if w.batchPause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.batchPause):
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context, batch []*models.PumpRequest) {
	var wg sync.WaitGroup
	for _, req := range batch {
		wg.Add(1)
		go func(req *models.PumpRequest) {
			defer wg.Done()
			outcome := w.processor.Process(ctx, req)
			if err := w.queue.MarkOutcome(req.ID, outcome); err != nil {
				logger.Logger.Error("Failed to record outcome",
					zap.String("request_id", req.ID), zap.Error(err))
			}
		}(req)
	}
	wg.Wait()
}
