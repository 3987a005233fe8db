// Package connectivity decides whether background reconciliation may run.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"attendsync/internal/submit"
)

// Network profiles reported by the platform layer. Only ProfileWiFi permits
// automatic reconciliation; cellular and unknown profiles do not.
const (
	ProfileWiFi     = "wifi"
	ProfileCellular = "cellular"
	ProfileNone     = "none"
	ProfileUnknown  = "unknown"
)

// Monitor reports the current network profile.
type Monitor interface {
	Profile() string
}

// StaticMonitor is a Monitor fed by the surrounding platform (environment at
// startup, PUT /v1/network afterwards). The agent has no radio access of its
// own.
type StaticMonitor struct {
	mu      sync.RWMutex
	profile string
}

// NewStaticMonitor creates a monitor with an initial profile.
func NewStaticMonitor(profile string) *StaticMonitor {
	if profile == "" {
		profile = ProfileUnknown
	}
	return &StaticMonitor{profile: normalizeProfile(profile)}
}

// Profile returns the last reported profile.
func (m *StaticMonitor) Profile() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

// Set records a newly reported profile.
func (m *StaticMonitor) Set(profile string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = normalizeProfile(profile)
}

func normalizeProfile(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// LastURLFunc returns the request string of the most recently stored event,
// or "" when there is none.
type LastURLFunc func(ctx context.Context) (string, error)

// Gate runs both admission checks: a wifi-class profile and a successful
// reachability probe against the institutional host.
type Gate struct {
	Monitor      Monitor
	LastURL      LastURLFunc
	FallbackHost string
	ProbePort    int
	HTTP         *http.Client
}

// NewGate builds a gate with a probe client bounded by timeout.
func NewGate(monitor Monitor, lastURL LastURLFunc, fallbackHost string, probePort int, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if probePort <= 0 {
		probePort = 5000
	}
	return &Gate{
		Monitor:      monitor,
		LastURL:      lastURL,
		FallbackHost: fallbackHost,
		ProbePort:    probePort,
		HTTP:         &http.Client{Timeout: timeout},
	}
}

// Allow returns nil when reconciliation may proceed. A non-nil error carries
// the user-visible reason; the gate never mutates anything.
func (g *Gate) Allow(ctx context.Context) error {
	if p := g.Monitor.Profile(); p != ProfileWiFi {
		return fmt.Errorf("not on a WiFi network (profile %q)", p)
	}

	host := g.FallbackHost
	if g.LastURL != nil {
		if last, err := g.LastURL(ctx); err == nil && last != "" {
			if h, ok := submit.Host(last); ok {
				host = h
			}
		}
	}

	if err := g.probe(ctx, host); err != nil {
		return fmt.Errorf("institutional server %q not reachable: %w", host, err)
	}
	return nil
}

func (g *Gate) probe(ctx context.Context, host string) error {
	pingURL := fmt.Sprintf("http://%s:%d/ping", host, g.ProbePort)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pingURL, nil)
	if err != nil {
		return err
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ping returned %s", resp.Status)
	}
	return nil
}
