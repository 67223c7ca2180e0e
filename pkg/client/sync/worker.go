package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/stewones/borda-sub001/pkg/logger"
)

// Worker is the single goroutine that owns all sync writes against the
// replica. Producers communicate with it only through serialized commands
// on the queue; a ticker re-enqueues every collection each interval so a
// dropped nudge is never fatal.
type Worker struct {
	engine      *Engine
	queue       *Queue
	collections []string
	interval    time.Duration

	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// NewWorker builds a worker syncing the given collections.
func NewWorker(engine *Engine, queue *Queue, collections []string, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{engine: engine, queue: queue, collections: collections, interval: interval}
}

// Trigger nudges the worker to sync one collection out of schedule.
func (w *Worker) Trigger(collection string) error {
	return w.queue.TryEnqueue(Command{Op: "sync", Collection: collection})
}

// Start launches the scheduler and the consumer goroutines.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		w.enqueueAll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.enqueueAll()
			}
		}
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case it, ok := <-w.queue.Out():
				if !ok {
					return
				}
				w.process(ctx, it)
			}
		}
	}()
	logger.Info("sync_worker_started", "collections", len(w.collections), "interval", w.interval.String())
}

// Stop cancels the worker and waits for in-flight commands to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logger.Info("sync_worker_stopped")
}

func (w *Worker) enqueueAll() {
	for _, c := range w.collections {
		if err := w.queue.TryEnqueue(Command{Op: "sync", Collection: c}); err != nil {
			logger.Debug("sync_enqueue_dropped", "collection", c, "error", err.Error())
		}
	}
}

// process decodes and executes one command. Commands run strictly
// sequentially; batches for one collection are never interleaved.
func (w *Worker) process(ctx context.Context, it *Item) {
	defer it.Done()
	cmd, err := it.Decode()
	if err != nil {
		logger.Error("sync_command_invalid", "error", err.Error())
		return
	}
	if cmd.Op != "sync" || cmd.Collection == "" {
		logger.Warn("sync_command_unknown", "op", cmd.Op)
		return
	}
	if err := w.engine.Sync(ctx, cmd.Collection); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("sync_collection_failed", "collection", cmd.Collection, "error", err.Error())
	}
}
