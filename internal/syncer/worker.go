package syncer

import (
	"context"
	"log"
	"time"

	"attendsync/internal/queue"
)

// Worker consumes sync triggers and runs reconciliation passes. One pass at a
// time: triggers arriving while a pass runs wait on the bus.
type Worker struct {
	Queue      queue.Queue
	Reconciler *Reconciler

	// Interval, when positive, publishes a periodic foreground trigger so
	// the queue drains even without connectivity callbacks.
	Interval time.Duration
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	triggers, err := w.Queue.Consume(ctx)
	if err != nil {
		return err
	}

	if w.Interval > 0 {
		go func() {
			ticker := time.NewTicker(w.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					_ = w.Queue.Publish(ctx, queue.Trigger{Source: queue.SourceForeground})
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	log.Println("sync worker started, waiting for triggers...")
	for t := range triggers {
		sum, err := w.Reconciler.Run(ctx, t.Force)
		if err != nil {
			log.Printf("sync run (%s): %v", t.Source, err)
			continue
		}
		log.Printf("sync run (%s): attempted=%d synchronized=%d failed=%d",
			t.Source, sum.Attempted, sum.Synchronized, sum.Failed)
	}
	log.Println("sync worker stopped")
	return nil
}
