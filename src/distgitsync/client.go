// Package distgitsync asks a DistroGitSync service to sync dist-git
// repositories before their components are rebuilt.
package distgitsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sofmeright/distrobaker/src/version"
)

// Client talks to the DistroGitSync API.
type Client struct {
	Endpoint string // e.g. http://distrogitsync:8080/
	HTTP     *http.Client
}

// New returns a client for endpoint.
func New(endpoint string) *Client {
	return &Client{Endpoint: endpoint, HTTP: &http.Client{Timeout: 60 * time.Second}}
}

type syncRequest struct {
	Namespace string `json:"namespace"`
	Component string `json:"component"`
}

// SyncResult is the service's answer to a sync request.
type SyncResult struct {
	Status string `json:"status"`
	Ref    string `json:"ref,omitempty"`
}

// Trigger requests a sync of namespace/component.
func (c *Client) Trigger(ctx context.Context, namespace, component string) error {
	_, err := c.Sync(ctx, namespace, component)
	return err
}

// Sync requests a sync of namespace/component and returns the result.
func (c *Client) Sync(ctx context.Context, namespace, component string) (*SyncResult, error) {
	url := strings.TrimRight(c.Endpoint, "/") + "/sync"
	var res SyncResult
	if err := c.doJSON(ctx, http.MethodPost, url, syncRequest{Namespace: namespace, Component: component}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %d %s", method, url, resp.StatusCode, truncateBody(respBody, 512))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s %s: %w", method, url, err)
		}
	}
	return nil
}

func truncateBody(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
