package exporter

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendsync/internal/scan"
	"attendsync/internal/store"
)

type fakeStore struct {
	pending     []store.Event
	marked      []int64
	diagnostics map[int64]string
}

func (f *fakeStore) ListPending(ctx context.Context) ([]store.Event, error) {
	return f.pending, nil
}

func (f *fakeStore) MarkSynchronized(ctx context.Context, id int64) error {
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeStore) UpdateDiagnostic(ctx context.Context, id int64, text string) error {
	if f.diagnostics == nil {
		f.diagnostics = make(map[int64]string)
	}
	f.diagnostics[id] = text
	return nil
}

func TestExport_WritesArtifactAndMarksRows(t *testing.T) {
	scannedAt := time.Date(2026, 8, 30, 7, 55, 0, 0, time.Local)
	st := &fakeStore{pending: []store.Event{
		{ID: 1, URL: "http://srv/a", ScannedAt: scannedAt, State: store.StatePending, Type: scan.TypeCheckIn},
		{ID: 2, URL: "http://srv/b", ScannedAt: scannedAt.Add(9 * time.Hour), State: store.StatePending, Type: scan.TypeCheckOut},
	}}

	dir := t.TempDir()
	e := New(st, dir)
	e.Now = func() time.Time { return scannedAt }

	path, err := e.Export(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []Record
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)

	assert.Equal(t, "http://srv/a", records[0].URL)
	assert.Equal(t, "2026-08-30", records[0].Date)
	assert.Equal(t, "07:55", records[0].CheckInTime)
	assert.Empty(t, records[0].CheckOutTime)

	assert.Equal(t, "16:55", records[1].CheckOutTime)
	assert.Empty(t, records[1].CheckInTime)

	assert.ElementsMatch(t, []int64{1, 2}, st.marked)
	assert.Equal(t, "exported", st.diagnostics[1])
}

func TestExport_EmptyQueueWritesNothing(t *testing.T) {
	dir := t.TempDir()
	e := New(&fakeStore{}, dir)

	path, err := e.Export(context.Background())
	require.NoError(t, err)
	assert.Empty(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
