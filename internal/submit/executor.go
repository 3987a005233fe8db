package submit

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// OutcomeKind classifies a submission attempt.
type OutcomeKind int

const (
	// Accepted means the endpoint answered with a 2xx status.
	Accepted OutcomeKind = iota + 1
	// Rejected means the endpoint answered with a non-2xx status.
	Rejected
	// Unreachable means the attempt failed at the transport layer or
	// timed out before an answer arrived.
	Unreachable
)

// Outcome is the result of one submission attempt.
type Outcome struct {
	Kind   OutcomeKind
	Status int // HTTP status when Kind is Accepted or Rejected
}

// Executor performs a single network submission with a bounded timeout.
// Retry policy lives entirely in the reconciler; the executor never retries
// and never touches the store.
type Executor struct {
	HTTP *http.Client
}

// NewExecutor creates an executor. TLS verification stays on unless
// insecureSkipVerify is set, which is meant for verified development
// endpoints only.
func NewExecutor(timeout time.Duration, insecureSkipVerify bool) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := http.DefaultTransport
	if insecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}
	return &Executor{HTTP: &http.Client{Timeout: timeout, Transport: transport}}
}

// Submit performs a GET of the canonical request string and classifies the
// result. A timeout or connection failure yields Unreachable, never an error:
// network trouble is an expected state, not a fault.
func (e *Executor) Submit(ctx context.Context, rendered string) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rendered, nil)
	if err != nil {
		// A stored request string that cannot even form a request will
		// never succeed; surface it as a rejection so the diagnostic
		// records something actionable instead of retrying forever.
		return Outcome{Kind: Rejected, Status: 0}
	}

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return Outcome{Kind: Unreachable}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Outcome{Kind: Accepted, Status: resp.StatusCode}
	}
	return Outcome{Kind: Rejected, Status: resp.StatusCode}
}
