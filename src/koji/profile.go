package koji

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Profile is a koji client profile as found in koji.conf.
type Profile struct {
	Name     string
	Server   string // hub XML-RPC endpoint
	WebURL   string
	TopURL   string
	AuthType string // "kerberos", "ssl", "noauth" or empty
	ServerCA string // optional CA bundle for the hub
	KrbRDNS  bool   // canonicalize the hub host by reverse DNS for GSSAPI
	Timeout  time.Duration
}

// DefaultConfigPaths lists the koji configuration files in the order koji
// reads them. Later files override earlier ones.
func DefaultConfigPaths() []string {
	paths := []string{"/etc/koji.conf"}
	if extra, err := filepath.Glob("/etc/koji.conf.d/*.conf"); err == nil {
		paths = append(paths, extra...)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".koji", "config"))
	}
	return paths
}

// LoadProfile reads the named profile from the koji configuration files.
// Missing files are skipped.
func LoadProfile(name string, paths ...string) (Profile, error) {
	if len(paths) == 0 {
		paths = DefaultConfigPaths()
	}

	sources := make([]interface{}, len(paths))
	for i, p := range paths {
		sources[i] = p
	}
	f, err := ini.LooseLoad(sources[0], sources[1:]...)
	if err != nil {
		return Profile{}, fmt.Errorf("reading koji config: %w", err)
	}

	sec, err := f.GetSection(name)
	if err != nil {
		return Profile{}, fmt.Errorf("koji profile %q not found in %s", name, strings.Join(paths, ", "))
	}

	p := Profile{
		Name:     name,
		Server:   sec.Key("server").String(),
		WebURL:   sec.Key("weburl").String(),
		TopURL:   sec.Key("topurl").String(),
		AuthType: sec.Key("authtype").String(),
		ServerCA: expandHome(sec.Key("serverca").String()),
		KrbRDNS:  sec.Key("krb_rdns").MustBool(true),
		Timeout:  time.Duration(sec.Key("timeout").MustInt(60*60*12)) * time.Second,
	}
	if p.Server == "" {
		return Profile{}, fmt.Errorf("koji profile %q: server not set", name)
	}
	return p, nil
}

// HTTPClient returns an HTTP client honouring the profile's CA and timeout.
func (p Profile) HTTPClient() (*http.Client, error) {
	c := &http.Client{Timeout: p.Timeout}
	if p.ServerCA == "" {
		return c, nil
	}

	pem, err := os.ReadFile(p.ServerCA)
	if err != nil {
		return nil, fmt.Errorf("reading server CA: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("server CA %s: no certificates found", p.ServerCA)
	}
	c.Transport = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
	}
	return c, nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
