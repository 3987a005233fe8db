package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// probeServer returns a /ping server, its host, and its port.
func probeServer(t *testing.T, status int, hits *atomic.Int64) (string, int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/ping", r.URL.Path)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func TestAllow_NoWiFiShortCircuits(t *testing.T) {
	var hits atomic.Int64
	host, port := probeServer(t, http.StatusOK, &hits)

	lastURLCalls := 0
	gate := NewGate(NewStaticMonitor(ProfileCellular), func(ctx context.Context) (string, error) {
		lastURLCalls++
		return "http://" + host + "/x", nil
	}, host, port, time.Second)

	err := gate.Allow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WiFi")
	assert.Zero(t, hits.Load(), "no network call when the profile check fails")
	assert.Zero(t, lastURLCalls, "no store read when the profile check fails")
}

func TestAllow_WiFiAndReachableServer(t *testing.T) {
	var hits atomic.Int64
	host, port := probeServer(t, http.StatusOK, &hits)

	gate := NewGate(NewStaticMonitor(ProfileWiFi), nil, host, port, time.Second)
	assert.NoError(t, gate.Allow(context.Background()))
	assert.Equal(t, int64(1), hits.Load())
}

func TestAllow_ProbeFailureRefuses(t *testing.T) {
	var hits atomic.Int64
	host, port := probeServer(t, http.StatusInternalServerError, &hits)

	gate := NewGate(NewStaticMonitor(ProfileWiFi), nil, host, port, time.Second)
	err := gate.Allow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestAllow_HostDerivedFromLastStoredEvent(t *testing.T) {
	var hits atomic.Int64
	host, port := probeServer(t, http.StatusOK, &hits)

	// Fallback host points nowhere; the stored event's host must win.
	last := fmt.Sprintf("https://%s/asistencia/registrar?docente=42", host)
	gate := NewGate(NewStaticMonitor(ProfileWiFi), func(ctx context.Context) (string, error) {
		return last, nil
	}, "unreachable.invalid", port, time.Second)

	assert.NoError(t, gate.Allow(context.Background()))
	assert.Equal(t, int64(1), hits.Load())
}

func TestAllow_FallbackHostWhenStoreEmpty(t *testing.T) {
	var hits atomic.Int64
	host, port := probeServer(t, http.StatusOK, &hits)

	gate := NewGate(NewStaticMonitor(ProfileWiFi), func(ctx context.Context) (string, error) {
		return "", nil
	}, host, port, time.Second)

	assert.NoError(t, gate.Allow(context.Background()))
}

func TestStaticMonitor_Normalizes(t *testing.T) {
	m := NewStaticMonitor(" WiFi ")
	assert.Equal(t, ProfileWiFi, m.Profile())

	m.Set("CELLULAR")
	assert.Equal(t, ProfileCellular, m.Profile())

	assert.Equal(t, ProfileUnknown, NewStaticMonitor("").Profile())
}
