// Package worker runs the background side of the pipeline: the polling
// drain loop for lead-research jobs, the sequence dispatcher that hands
// rendered touches to the delivery provider, and the webhook applier that
// folds provider events back into lead state.
package worker

import (
	"context"
	"log"
	"sync"
	"time"
)

// Drainer claims queued jobs and runs them through the pipeline stages.
// *pipeline.Service satisfies it.
type Drainer interface {
	DrainQueue(ctx context.Context) (processed, failed int, err error)
}

// Worker polls the job queue and drives claimed leads through the pipeline.
// Multiple instances may run concurrently; the claim step in the store
// keeps them from processing the same job.
type Worker struct {
	svc        Drainer
	dispatcher *Dispatcher // optional; nil when no provider is configured
	interval   time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a polling worker. interval is the queue poll period.
// dispatcher may be nil to run research jobs without outbound sending.
func NewWorker(svc Drainer, dispatcher *Dispatcher, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Worker{svc: svc, dispatcher: dispatcher, interval: interval}
}

// Start launches the poll loop. Safe to call once; a second call while
// running is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true

	go w.loop(ctx)
	log.Printf("[Worker] Started, polling every %s", w.interval)
}

// Stop requests shutdown and waits for the in-flight batch to finish.
// Claiming stops immediately; the lead being processed completes its stage.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	done := w.done
	w.running = false
	w.mu.Unlock()

	<-done
	log.Printf("[Worker] Stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Drain once immediately so a restart doesn't wait a full interval.
	w.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	processed, failed, err := w.svc.DrainQueue(ctx)
	if err != nil {
		log.Printf("[Worker] Drain error: %v", err)
		return
	}
	if processed > 0 || failed > 0 {
		log.Printf("[Worker] Drained queue: %d processed, %d failed", processed, failed)
	}

	if w.dispatcher != nil {
		dispatched, err := w.dispatcher.Dispatch(ctx)
		if err != nil {
			log.Printf("[Worker] Dispatch error: %v", err)
			return
		}
		if dispatched > 0 {
			log.Printf("[Worker] Dispatched %d sequences", dispatched)
		}
	}
}
