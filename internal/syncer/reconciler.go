// Package syncer replays durably queued events against the institutional
// endpoint once connectivity allows.
package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"attendsync/internal/metrics"
	"attendsync/internal/store"
	"attendsync/internal/submit"
)

// EventStore is the slice of the durable store the reconciler mutates.
type EventStore interface {
	ListPending(ctx context.Context) ([]store.Event, error)
	ListDue(ctx context.Context, now time.Time, maxAttempts int) ([]store.Event, error)
	MarkSynchronized(ctx context.Context, id int64) error
	RecordAttempt(ctx context.Context, id int64, diagnostic string, attempts int, nextAttemptAt time.Time) error
	UpdateDiagnostic(ctx context.Context, id int64, text string) error
}

// Submitter performs one submission attempt.
type Submitter interface {
	Submit(ctx context.Context, rendered string) submit.Outcome
}

// Gate admits or refuses a reconciliation run.
type Gate interface {
	Allow(ctx context.Context) error
}

// RetryPolicy bounds how often a failing event is reattempted.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// Backoff returns the delay before the given attempt number is retried.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	d := p.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Summary reports what one reconciliation run did.
type Summary struct {
	Attempted    int
	Synchronized int
	Failed       int
}

// Reconciler drains the pending queue. It never gives up on a run because a
// single event failed: partial success is the normal case.
type Reconciler struct {
	Store     EventStore
	Submitter Submitter
	Gate      Gate
	Policy    RetryPolicy
	Now       func() time.Time
}

// New creates a reconciler with the wall clock.
func New(st EventStore, sub Submitter, gate Gate, policy RetryPolicy) *Reconciler {
	return &Reconciler{Store: st, Submitter: sub, Gate: gate, Policy: policy, Now: time.Now}
}

// Run executes one reconciliation pass. Unforced runs are admitted by the
// connectivity gate and honor per-event backoff and the retry budget; forced
// runs (explicit user action) reattempt every pending event immediately.
// A gate refusal returns an error before any store or network activity.
func (r *Reconciler) Run(ctx context.Context, force bool) (Summary, error) {
	if !force {
		if err := r.Gate.Allow(ctx); err != nil {
			metrics.SyncRunsTotal.WithLabelValues("gated").Inc()
			return Summary{}, fmt.Errorf("sync not started: %w", err)
		}
	}

	now := r.Now()
	var (
		events []store.Event
		err    error
	)
	if force {
		events, err = r.Store.ListPending(ctx)
	} else {
		events, err = r.Store.ListDue(ctx, now, r.Policy.MaxAttempts)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("list pending events: %w", err)
	}

	var sum Summary
	for _, evt := range events {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Attempted++

		outcome := r.Submitter.Submit(ctx, evt.URL)
		switch outcome.Kind {
		case submit.Accepted:
			metrics.SyncAttemptsTotal.WithLabelValues("accepted").Inc()
			if err := r.Store.MarkSynchronized(ctx, evt.ID); err != nil {
				log.Printf("mark synchronized %d failed: %v", evt.ID, err)
				sum.Failed++
				continue
			}
			_ = r.Store.UpdateDiagnostic(ctx, evt.ID, "sent")
			sum.Synchronized++

		case submit.Rejected:
			metrics.SyncAttemptsTotal.WithLabelValues("rejected").Inc()
			r.recordFailure(ctx, evt, now, fmt.Sprintf("rejected with status %d", outcome.Status))
			sum.Failed++

		case submit.Unreachable:
			metrics.SyncAttemptsTotal.WithLabelValues("unreachable").Inc()
			r.recordFailure(ctx, evt, now, "server unreachable")
			sum.Failed++
		}
	}

	metrics.SyncRunsTotal.WithLabelValues("completed").Inc()
	return sum, nil
}

func (r *Reconciler) recordFailure(ctx context.Context, evt store.Event, now time.Time, reason string) {
	attempts := evt.Attempts + 1
	diagnostic := fmt.Sprintf("%s (attempt %d/%d)", reason, attempts, r.Policy.MaxAttempts)
	if attempts >= r.Policy.MaxAttempts {
		diagnostic = fmt.Sprintf("%s; retry budget exhausted after %d attempts", reason, attempts)
	}
	next := now.Add(r.Policy.Backoff(attempts))
	if err := r.Store.RecordAttempt(ctx, evt.ID, diagnostic, attempts, next); err != nil {
		log.Printf("record attempt for event %d failed: %v", evt.ID, err)
	}
}
