package scan

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"attendsync/internal/metrics"
	"attendsync/internal/store"
	"attendsync/internal/submit"
)

// Status is the resolution of one processed scan.
type Status int

const (
	// StatusConfirmed: the endpoint accepted the submission; nothing was
	// persisted.
	StatusConfirmed Status = iota + 1
	// StatusQueued: submission failed and the event was durably queued.
	StatusQueued
	// StatusRejected: the payload failed validation; nothing was persisted.
	StatusRejected
	// StatusIgnored: the scan was dropped before processing (another scan
	// in flight, scanning deactivated, or debounce).
	StatusIgnored
	// StatusFailed: the store was unavailable; the operation was aborted.
	StatusFailed
)

// Result is what the presentation layer shows for one scan.
type Result struct {
	Status  Status
	Message string
	EventID int64 // set when Status is StatusQueued and a new row was written
}

// EventStore is the slice of the durable store the orchestrator uses.
type EventStore interface {
	Exists(ctx context.Context, dedupKey string) (bool, error)
	InsertPending(ctx context.Context, evt store.Event) (int64, bool, error)
	DeviceID(ctx context.Context) (string, error)
}

// Submitter performs the immediate submission attempt.
type Submitter interface {
	Submit(ctx context.Context, rendered string) submit.Outcome
}

// Feedback is the local confirmation side effect on success (the device
// vibration in the original capture flow).
type Feedback interface {
	Success(ctx context.Context)
}

// LogFeedback logs instead of vibrating; the default for headless runs.
type LogFeedback struct{}

// Success implements Feedback.
func (LogFeedback) Success(ctx context.Context) { log.Println("scan confirmed") }

const debounceWindow = 5 * time.Second

// Orchestrator runs the per-scan state machine:
// Idle -> Validating -> Submitting -> (Queued | Confirmed) -> Idle.
//
// A mutex, not the advisory active flag, enforces single-flight processing:
// two rapid detections cannot both enter Submitting.
type Orchestrator struct {
	BaseURL       string
	WindowMinutes int
	Store         EventStore
	Submitter     Submitter
	Feedback      Feedback
	Now           func() time.Time

	mu         sync.Mutex
	stateMu    sync.Mutex
	active     bool
	lastRaw    string
	lastScanAt time.Time
}

// NewOrchestrator creates an orchestrator with scanning active.
func NewOrchestrator(baseURL string, windowMinutes int, st EventStore, sub Submitter, fb Feedback) *Orchestrator {
	if fb == nil {
		fb = LogFeedback{}
	}
	return &Orchestrator{
		BaseURL:       baseURL,
		WindowMinutes: windowMinutes,
		Store:         st,
		Submitter:     sub,
		Feedback:      fb,
		Now:           time.Now,
		active:        true,
	}
}

// Active reports whether scanning is currently accepted.
func (o *Orchestrator) Active() bool {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.active
}

// Reactivate re-enables scanning after a resolved submission; called by the
// surrounding UI.
func (o *Orchestrator) Reactivate() {
	o.stateMu.Lock()
	o.active = true
	o.stateMu.Unlock()
}

// Deactivate disables scanning (surrounding UI leaving the capture view).
func (o *Orchestrator) Deactivate() {
	o.stateMu.Lock()
	o.active = false
	o.stateMu.Unlock()
}

// Process handles one raw scanned payload end to end. It never returns an
// error to the caller: every failure mode resolves to a Result with a short
// human-readable message.
func (o *Orchestrator) Process(ctx context.Context, raw string) Result {
	// Single-flight guard. A scan arriving while another is processing is
	// rejected outright with no state change.
	if !o.mu.TryLock() {
		return Result{Status: StatusIgnored, Message: "a scan is already being processed"}
	}
	defer o.mu.Unlock()

	now := o.Now()

	o.stateMu.Lock()
	if !o.active {
		o.stateMu.Unlock()
		return Result{Status: StatusIgnored, Message: "scanning is deactivated"}
	}
	if raw == o.lastRaw && now.Sub(o.lastScanAt) < debounceWindow {
		o.stateMu.Unlock()
		metrics.ScansTotal.WithLabelValues("ignored").Inc()
		return Result{Status: StatusIgnored, Message: "duplicate scan ignored"}
	}
	o.lastRaw = raw
	o.lastScanAt = now
	o.stateMu.Unlock()

	// Validating.
	validated, err := Parse(raw, now, o.WindowMinutes)
	if err != nil {
		metrics.ScansTotal.WithLabelValues("rejected").Inc()
		if ve, ok := AsValidation(err); ok {
			return Result{Status: StatusRejected, Message: ve.Message}
		}
		return Result{Status: StatusRejected, Message: err.Error()}
	}

	// Submitting: scanning stays off until the UI reactivates it.
	o.Deactivate()

	if validated.DeviceID == "" {
		if id, err := o.Store.DeviceID(ctx); err == nil {
			validated.DeviceID = id
		}
	}

	rendered := submit.BuildURL(o.BaseURL, validated)
	outcome := o.Submitter.Submit(ctx, rendered)
	if outcome.Kind == submit.Accepted {
		o.Feedback.Success(ctx)
		metrics.ScansTotal.WithLabelValues("confirmed").Inc()
		return Result{
			Status:  StatusConfirmed,
			Message: fmt.Sprintf("%s registered for teacher %d", validated.Type, validated.TeacherID),
		}
	}

	// Queued: the submission failed, persist the event for reconciliation.
	return o.queue(ctx, validated, rendered, now, outcome)
}

func (o *Orchestrator) queue(ctx context.Context, v Validated, rendered string, now time.Time, outcome submit.Outcome) Result {
	key := submit.DedupKey(v)

	if exists, err := o.Store.Exists(ctx, key); err != nil {
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		return Result{Status: StatusFailed, Message: "local storage unavailable, scan not saved"}
	} else if exists {
		metrics.ScansTotal.WithLabelValues("queued").Inc()
		return Result{Status: StatusQueued, Message: "offline; an identical event is already queued"}
	}

	diagnostic := "pending"
	if outcome.Kind == submit.Rejected {
		diagnostic = fmt.Sprintf("rejected with status %d at scan time", outcome.Status)
	}

	id, inserted, err := o.Store.InsertPending(ctx, store.Event{
		URL:        rendered,
		DedupKey:   key,
		ScannedAt:  now,
		State:      store.StatePending,
		Diagnostic: diagnostic,
		TeacherID:  v.TeacherID,
		DeviceID:   v.DeviceID,
		Latitude:   v.Lat,
		Longitude:  v.Lng,
		Type:       v.Type,
	})
	if err != nil {
		metrics.ScansTotal.WithLabelValues("failed").Inc()
		return Result{Status: StatusFailed, Message: "local storage unavailable, scan not saved"}
	}
	metrics.ScansTotal.WithLabelValues("queued").Inc()
	if !inserted {
		// Lost the race against an identical scan; the stored row wins.
		return Result{Status: StatusQueued, Message: "offline; an identical event is already queued"}
	}
	return Result{Status: StatusQueued, Message: "no connection; saved locally for later sync", EventID: id}
}
