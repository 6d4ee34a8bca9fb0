// Package contentresolver fetches the package lists Content Resolver
// publishes for a view. DistroBaker uses them as the automatic component
// list when the configuration does not name components explicitly.
package contentresolver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultArches are the architectures whose lists are merged.
var DefaultArches = []string{"aarch64", "armv7hl", "ppc64le", "s390x", "x86_64"}

// DefaultSources are the list kinds merged for every architecture.
var DefaultSources = []string{"source", "buildroot-source"}

// Client downloads package name lists.
type Client struct {
	HTTP        *http.Client
	Concurrency int
	Logger      zerolog.Logger
}

// New creates a client with the given timeout in seconds.
func New(timeoutSecs int, logger zerolog.Logger) *Client {
	if timeoutSecs <= 0 {
		timeoutSecs = 30
	}
	return &Client{
		HTTP:        &http.Client{Timeout: time.Duration(timeoutSecs) * time.Second},
		Concurrency: 4,
		Logger:      logger,
	}
}

// ListURL returns the location of one package name list.
func ListURL(base, source, view, arch string) string {
	return fmt.Sprintf("%s/view-%s-package-name-list--view-%s--%s.txt",
		strings.TrimSuffix(base, "/"), source, view, arch)
}

// Packages returns the sorted union of the package names listed for every
// arch and source of the view. Nil arches or sources select the defaults.
// Any failed download fails the whole call.
func (c *Client) Packages(ctx context.Context, base, view string, arches, sources []string) ([]string, error) {
	if arches == nil {
		arches = DefaultArches
	}
	if sources == nil {
		sources = DefaultSources
	}

	var (
		mu     sync.Mutex
		merged = make(map[string]struct{})
	)

	g, ctx := errgroup.WithContext(ctx)
	limit := c.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, arch := range arches {
		for _, source := range sources {
			url := ListURL(base, source, view, arch)
			g.Go(func() error {
				c.Logger.Debug().Str("url", url).Msg("downloading package list")
				names, err := c.fetchList(ctx, url)
				if err != nil {
					return err
				}
				mu.Lock()
				for _, n := range names {
					merged[n] = struct{}{}
				}
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(merged))
	for n := range merged {
		out = append(out, n)
	}
	sort.Strings(out)

	c.Logger.Debug().Int("packages", len(out)).Msg("found packages in content resolver")
	return out, nil
}

// fetchList GETs a URL and returns its non-empty lines.
func (c *Client) fetchList(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("contentresolver: create request: %w", err)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contentresolver: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contentresolver: GET %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("contentresolver: read %s: %w", url, err)
	}

	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}
