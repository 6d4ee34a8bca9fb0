// Package koji is a minimal XML-RPC client for the koji build system hub.
package koji

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
	"github.com/sofmeright/distrobaker/src/version"
)

// Doer sends HTTP requests. *http.Client and SPNEGO clients satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator produces the client used for the sslLogin call.
type Authenticator interface {
	LoginClient(p Profile, base *http.Client) (Doer, error)
}

// Session is a connection to a single koji hub. Calls are serialised since
// authenticated calls carry a strictly increasing call number.
type Session struct {
	Profile Profile

	http    *http.Client
	mu      sync.Mutex
	id      int64
	key     string
	callnum int64
	created time.Time
}

type loginInfo struct {
	SessionID  int    `xmlrpc:"session-id"`
	SessionKey string `xmlrpc:"session-key"`
}

// NewSession creates an anonymous session for the profile.
func NewSession(p Profile, httpClient *http.Client) *Session {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Session{Profile: p, http: httpClient, created: time.Now()}
}

// LoggedIn reports whether the session holds hub credentials.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != ""
}

// Created returns the time the session was established.
func (s *Session) Created() time.Time {
	return s.created
}

// Login authenticates against the hub's ssllogin endpoint.
func (s *Session) Login(ctx context.Context, auth Authenticator) error {
	doer, err := auth.LoginClient(s.Profile, s.http)
	if err != nil {
		return fmt.Errorf("koji %s: preparing login: %w", s.Profile.Name, err)
	}

	var info loginInfo
	endpoint := strings.TrimRight(s.Profile.Server, "/") + "/ssllogin"
	if err := s.send(ctx, doer, endpoint, "sslLogin", &info, nil); err != nil {
		return fmt.Errorf("koji %s: login failed: %w", s.Profile.Name, err)
	}
	if info.SessionKey == "" {
		return fmt.Errorf("koji %s: login returned no session", s.Profile.Name)
	}

	s.mu.Lock()
	s.id, s.key, s.callnum = int64(info.SessionID), info.SessionKey, 0
	s.created = time.Now()
	s.mu.Unlock()
	return nil
}

// Logout ends an authenticated session. It is a no-op on anonymous ones.
func (s *Session) Logout(ctx context.Context) error {
	if !s.LoggedIn() {
		return nil
	}
	err := s.Call(ctx, "logout", nil)
	s.mu.Lock()
	s.id, s.key = 0, ""
	s.mu.Unlock()
	return err
}

// Call invokes method with args and decodes the result into result, which
// may be nil.
func (s *Session) Call(ctx context.Context, method string, result interface{}, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	endpoint := s.Profile.Server
	header := http.Header{}
	if s.key != "" {
		q := url.Values{}
		q.Set("session-id", strconv.FormatInt(s.id, 10))
		q.Set("session-key", s.key)
		q.Set("callnum", strconv.FormatInt(s.callnum, 10))
		endpoint += "?" + q.Encode()

		header.Set("Koji-Session-Id", strconv.FormatInt(s.id, 10))
		header.Set("Koji-Session-Key", s.key)
		header.Set("Koji-Session-Callnum", strconv.FormatInt(s.callnum, 10))
		s.callnum++
	}
	if err := s.sendHeader(ctx, s.http, endpoint, method, result, header, args...); err != nil {
		return fmt.Errorf("koji %s: %s: %w", s.Profile.Name, method, err)
	}
	return nil
}

func (s *Session) send(ctx context.Context, doer Doer, endpoint, method string, result interface{}, args []interface{}) error {
	return s.sendHeader(ctx, doer, endpoint, method, result, nil, args...)
}

func (s *Session) sendHeader(ctx context.Context, doer Doer, endpoint, method string, result interface{}, header http.Header, args ...interface{}) error {
	body, err := xmlrpc.EncodeMethodCall(method, args...)
	if err != nil {
		return fmt.Errorf("encoding call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := doer.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	r := xmlrpc.Response(data)
	if err := r.Err(); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := r.Unmarshal(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// kwargs encodes keyword arguments the way the hub expects them.
func kwargs(kv map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)+1)
	for k, v := range kv {
		out[k] = v
	}
	out["__starstar"] = true
	return out
}

// ── Hub calls ──

func (s *Session) GetBuildTarget(ctx context.Context, name string) (*BuildTarget, error) {
	var t BuildTarget
	if err := s.Call(ctx, "getBuildTarget", &t, name); err != nil {
		return nil, err
	}
	if t.Name == "" {
		return nil, fmt.Errorf("koji %s: build target %q not found", s.Profile.Name, name)
	}
	return &t, nil
}

func (s *Session) GetBuild(ctx context.Context, id int) (*BuildInfo, error) {
	var b BuildInfo
	if err := s.Call(ctx, "getBuild", &b, id); err != nil {
		return nil, err
	}
	if b.NVR == "" {
		return nil, fmt.Errorf("koji %s: build %d not found", s.Profile.Name, id)
	}
	if b.BuildID == 0 {
		b.BuildID = b.ID
	}
	return &b, nil
}

func (s *Session) ListTagged(ctx context.Context, tag string, latest bool) ([]BuildInfo, error) {
	var builds []BuildInfo
	if err := s.Call(ctx, "listTagged", &builds, tag, kwargs(map[string]interface{}{"latest": latest})); err != nil {
		return nil, err
	}
	return builds, nil
}

// LatestBuild returns the latest build of pkg in tag, or nil if there is none.
func (s *Session) LatestBuild(ctx context.Context, tag, pkg string) (*BuildInfo, error) {
	var builds []BuildInfo
	if err := s.Call(ctx, "getLatestBuilds", &builds, tag, kwargs(map[string]interface{}{"package": pkg})); err != nil {
		return nil, err
	}
	if len(builds) == 0 {
		return nil, nil
	}
	return &builds[0], nil
}

func (s *Session) TagBuild(ctx context.Context, tag, nvr string) (int, error) {
	var task int
	if err := s.Call(ctx, "tagBuild", &task, tag, nvr); err != nil {
		return 0, err
	}
	return task, nil
}

func (s *Session) Build(ctx context.Context, src, target string, scratch bool) (int, error) {
	var task int
	if err := s.Call(ctx, "build", &task, src, target, map[string]interface{}{"scratch": scratch}); err != nil {
		return 0, err
	}
	return task, nil
}
