package submit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmit_Accepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewExecutor(2*time.Second, false)
	out := e.Submit(context.Background(), srv.URL+"/registrar?docente=42")
	assert.Equal(t, Accepted, out.Kind)
	assert.Equal(t, http.StatusOK, out.Status)
}

func TestSubmit_RejectedCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewExecutor(2*time.Second, false)
	out := e.Submit(context.Background(), srv.URL)
	assert.Equal(t, Rejected, out.Kind)
	assert.Equal(t, http.StatusBadGateway, out.Status)
}

func TestSubmit_ConnectionRefusedIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	e := NewExecutor(2*time.Second, false)
	out := e.Submit(context.Background(), srv.URL)
	assert.Equal(t, Unreachable, out.Kind)
}

func TestSubmit_TimeoutIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	e := NewExecutor(50*time.Millisecond, false)
	out := e.Submit(context.Background(), srv.URL)
	assert.Equal(t, Unreachable, out.Kind)
}

func TestSubmit_MalformedStoredRequestIsRejected(t *testing.T) {
	e := NewExecutor(time.Second, false)
	out := e.Submit(context.Background(), "http://\x7f bad url")
	assert.Equal(t, Rejected, out.Kind)
}
