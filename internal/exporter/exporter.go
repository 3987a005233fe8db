// Package exporter writes queued events to a shareable JSON artifact and
// marks them transmitted.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"attendsync/internal/metrics"
	"attendsync/internal/scan"
	"attendsync/internal/store"
)

// Record is one exported event.
type Record struct {
	URL          string `json:"url"`
	Date         string `json:"date"`
	CheckInTime  string `json:"checkInTime,omitempty"`
	CheckOutTime string `json:"checkOutTime,omitempty"`
	State        string `json:"state"`
}

// EventStore is the slice of the durable store the exporter uses.
type EventStore interface {
	ListPending(ctx context.Context) ([]store.Event, error)
	MarkSynchronized(ctx context.Context, id int64) error
	UpdateDiagnostic(ctx context.Context, id int64, text string) error
}

// Exporter writes export artifacts into Dir.
type Exporter struct {
	Store EventStore
	Dir   string
	Now   func() time.Time
}

// New creates an exporter.
func New(st EventStore, dir string) *Exporter {
	if dir == "" {
		dir = "."
	}
	return &Exporter{Store: st, Dir: dir, Now: time.Now}
}

// Export writes all pending events to a timestamped JSON file and marks each
// one synchronized with an "exported" diagnostic. Returns the file path, or
// "" when there was nothing to export.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	events, err := e.Store.ListPending(ctx)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	if len(events) == 0 {
		return "", nil
	}

	records := make([]Record, 0, len(events))
	for _, evt := range events {
		rec := Record{
			URL:   evt.URL,
			Date:  evt.ScannedAt.Format("2006-01-02"),
			State: evt.State,
		}
		if evt.Type == scan.TypeCheckOut {
			rec.CheckOutTime = evt.ScannedAt.Format("15:04")
		} else {
			rec.CheckInTime = evt.ScannedAt.Format("15:04")
		}
		records = append(records, rec)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}

	path := filepath.Join(e.Dir, fmt.Sprintf("attendance_%s.json", e.Now().Format("20060102_1504")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}

	// The artifact is the confirmed transmission; rows flip only after the
	// file is on disk.
	for _, evt := range events {
		if err := e.Store.MarkSynchronized(ctx, evt.ID); err != nil {
			return path, fmt.Errorf("export wrote %s but marking event %d failed: %w", path, evt.ID, err)
		}
		_ = e.Store.UpdateDiagnostic(ctx, evt.ID, "exported")
	}

	metrics.ExportsTotal.Inc()
	return path, nil
}
