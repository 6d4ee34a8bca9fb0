package kerberos

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recorder) run(_ context.Context, args []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRenew(t *testing.T) {
	rec := &recorder{}
	r := NewRenewer("/etc/krb5.keytab", "distrobaker@EXAMPLE.COM", zerolog.Nop(), nil)
	r.run = rec.run

	if err := r.Renew(context.Background()); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if got := strings.Join(rec.calls[0], " "); got != "-k -t /etc/krb5.keytab distrobaker@EXAMPLE.COM" {
		t.Errorf("kinit args = %q", got)
	}

	rec.err = errors.New("exit status 1")
	if err := r.Renew(context.Background()); err == nil || !strings.Contains(err.Error(), "distrobaker@EXAMPLE.COM") {
		t.Errorf("Renew error = %v", err)
	}
}

func TestRunTicksAndWatches(t *testing.T) {
	dir := t.TempDir()
	keytab := filepath.Join(dir, "client.keytab")
	if err := os.WriteFile(keytab, []byte("v1"), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{err: errors.New("no KDC")}
	r := NewRenewer(keytab, "distrobaker@EXAMPLE.COM", zerolog.Nop(), nil)
	r.Interval = time.Hour
	r.run = rec.run

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitFor(t, func() bool { return rec.count() >= 1 })

	if err := os.WriteFile(keytab, []byte("v2"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.count() >= 2 })

	// Unrelated files in the keytab directory are ignored.
	time.Sleep(50 * time.Millisecond)
	before := rec.count()
	if err := os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if rec.count() != before {
		t.Errorf("renewed on unrelated file change")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunMissingDirectory(t *testing.T) {
	r := NewRenewer(filepath.Join(t.TempDir(), "missing", "client.keytab"), "p@EXAMPLE.COM", zerolog.Nop(), nil)
	r.run = (&recorder{}).run
	if err := r.Run(context.Background()); err == nil {
		t.Error("Run succeeded without a keytab directory")
	}
}
