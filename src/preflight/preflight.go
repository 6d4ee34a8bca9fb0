// Package preflight verifies that the configured endpoints are reachable
// over TLS before the daemon starts.
package preflight

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sofmeright/distrobaker/src/version"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of checking one URL.
type Result struct {
	URL    string
	Status int
	Err    error
	TLS    bool // the failure is a certificate or handshake error
}

// OK reports whether the endpoint answered.
func (r Result) OK() bool { return r.Err == nil }

// Checker probes endpoints.
type Checker struct {
	HTTP        *http.Client
	Concurrency int
}

// New returns a checker with the given per-request timeout.
func New(timeout time.Duration) *Checker {
	return &Checker{HTTP: &http.Client{Timeout: timeout}, Concurrency: 4}
}

// Check probes every URL with HEAD, falling back to GET when HEAD is not
// allowed. Results are sorted by URL. The returned error is non-nil when
// any endpoint failed.
func (c *Checker) Check(ctx context.Context, urls []string) ([]Result, error) {
	var (
		mu      sync.Mutex
		results []Result
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))

	for _, u := range urls {
		g.Go(func() error {
			r := c.probe(ctx, u)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].URL < results[j].URL })

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d endpoints unreachable", failed, len(results))
	}
	return results, nil
}

func (c *Checker) probe(ctx context.Context, url string) Result {
	res := Result{URL: url}
	status, err := c.do(ctx, http.MethodHead, url)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = c.do(ctx, http.MethodGet, url)
	}
	res.Status, res.Err = status, err
	if err == nil && status >= 500 {
		res.Err = fmt.Errorf("HTTP %d", status)
	}
	if err != nil {
		res.TLS = isTLSError(err)
	}
	return res
}

func (c *Checker) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func isTLSError(err error) bool {
	var (
		unknownAuth x509.UnknownAuthorityError
		hostname    x509.HostnameError
		invalid     x509.CertificateInvalidError
		verify      *tls.CertificateVerificationError
		record      tls.RecordHeaderError
	)
	return errors.As(err, &unknownAuth) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid) ||
		errors.As(err, &verify) ||
		errors.As(err, &record)
}
