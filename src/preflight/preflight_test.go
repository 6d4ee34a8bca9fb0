package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheck(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()

	getOnly := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer getOnly.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	c := New(5 * time.Second)
	results, err := c.Check(context.Background(), []string{ok.URL, getOnly.URL})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	for _, r := range results {
		if !r.OK() || r.Status != http.StatusOK {
			t.Errorf("result = %+v", r)
		}
	}

	results, err = c.Check(context.Background(), []string{ok.URL, broken.URL})
	if err == nil {
		t.Fatal("Check succeeded with a failing endpoint")
	}
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
			if r.URL != broken.URL {
				t.Errorf("unexpected failure %+v", r)
			}
		}
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestCheckTLSFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	results, err := New(5*time.Second).Check(context.Background(), []string{srv.URL})
	if err == nil {
		t.Fatal("Check trusted a self-signed certificate")
	}
	if !results[0].TLS {
		t.Errorf("result = %+v, want a TLS failure", results[0])
	}

	c := &Checker{HTTP: srv.Client(), Concurrency: 1}
	if _, err := c.Check(context.Background(), []string{srv.URL}); err != nil {
		t.Errorf("Check with trusted client: %v", err)
	}
}
